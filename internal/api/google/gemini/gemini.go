// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gemini provides a very minimal client for interacting with Gemini
// API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"go.astrophena.name/voicelog/internal/request"
)

// DefaultBaseURL is the Gemini API endpoint used when Client.BaseURL is empty.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client holds configuration for interacting with the Gemini API.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// GenerateContentParams defines the structure for the request body sent to the
// GenerateContent API.
type GenerateContentParams struct {
	// Contents is a list of Content objects representing the input for
	// generation.
	Contents []*Content `json:"contents"`
	// SystemInstruction is an optional Content object specifying system
	// instructions for generation.
	SystemInstruction *Content `json:"systemInstruction,omitempty"`
	// GenerationConfig configures the model output.
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig holds configuration options for model generation.
type GenerationConfig struct {
	// ResponseMimeType is the MIME type of the generated candidate text, for
	// example "application/json".
	ResponseMimeType string `json:"responseMimeType,omitempty"`
	// Temperature controls the randomness of the output.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxOutputTokens is the maximum number of tokens to include in a
	// candidate.
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// Content represents a piece of content with a list of Part objects.
type Content struct {
	// Parts is a list of Part objects.
	Parts []*Part `json:"parts"`
	// Role is the producer of the content. Must be either 'user' or 'model'.
	Role string `json:"role,omitempty"`
}

// Part represents an element within a Content object.
type Part struct {
	// InlineData is the inline media bytes.
	InlineData *InlineData `json:"inline_data,omitempty"`
	// Text is the content of the textual element.
	Text string `json:"text,omitempty"`
}

// InlineData is the raw media bytes.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // encoded as Base64
}

// Blob returns a Part carrying data of the given MIME type inline.
func Blob(mimeType string, data []byte) *Part {
	return &Part{InlineData: &InlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

// GenerateContentResponse defines the structure of the response received from
// the GenerateContent API.
type GenerateContentResponse struct {
	// Candidates is a list of Candidate objects representing the generated
	// alternatives.
	Candidates []*Candidate `json:"candidates"`
}

// Candidate represents a generated candidate with a corresponding Content
// object.
type Candidate struct {
	// Content is the generated content for this candidate.
	Content *Content `json:"content"`
	// FinishReason is the reason why the model stopped generating tokens.
	FinishReason string `json:"finishReason,omitempty"`
}

// ErrNoText is returned by [GenerateContentResponse.Text] when the response
// contains no text.
var ErrNoText = errors.New("gemini: response contains no text")

// Text returns the concatenated text parts of the first candidate.
func (r *GenerateContentResponse) Text() (string, error) {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return "", ErrNoText
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrNoText
	}
	return sb.String(), nil
}

// RawRequest sends a raw request to the Gemini API.
func RawRequest[Response any](ctx context.Context, c *Client, method string, path string, body any) (Response, error) {
	baseURL := DefaultBaseURL
	if c.BaseURL != "" {
		baseURL = strings.TrimSuffix(c.BaseURL, "/")
	}
	rp := request.Params{
		Method: method,
		URL:    baseURL + path,
		Headers: map[string]string{
			"x-goog-api-key": c.APIKey,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	}
	if body != nil {
		rp.Body = body
	}
	return request.Make[Response](ctx, rp)
}

// GenerateContent sends a request to the Gemini API to generate content.
func (c *Client) GenerateContent(ctx context.Context, model string, params GenerateContentParams) (*GenerateContentResponse, error) {
	if model == "" {
		return nil, errors.New("gemini: model shouldn't be empty")
	}
	return RawRequest[*GenerateContentResponse](ctx, c, http.MethodPost, "/models/"+model+":generateContent", params)
}
