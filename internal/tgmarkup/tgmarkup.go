// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package tgmarkup converts between Markdown, Telegram message entities and
// Telegram-flavored HTML.
package tgmarkup

import (
	"strings"
	"unicode/utf16"

	"rsc.io/markdown"
)

// Message represents a Telegram message with text and entities for formatting.
// It is designed to be marshaled into JSON for use with the Telegram Bot API.
// See https://core.telegram.org/bots/api#message for more information.
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Type represents the type of a Telegram message entity.
// See https://core.telegram.org/bots/api#messageentity for a complete list of
// supported types.
type Type string

// Constants for various Telegram message entity types.
const (
	Mention              Type = "mention"      // @username
	Hashtag              Type = "hashtag"      // #hashtag
	Cashtag              Type = "cashtag"      // $USD
	BotCommand           Type = "bot_command"  // /start@jobs_bot
	URL                  Type = "url"          // https://telegram.org
	Email                Type = "email"        // do-not-reply@telegram.org
	PhoneNumber          Type = "phone_number" // +1-212-555-0123
	Bold                 Type = "bold"
	Italic               Type = "italic"
	Underline            Type = "underline"
	Strikethrough        Type = "strikethrough"
	Spoiler              Type = "spoiler"
	Blockquote           Type = "blockquote"
	ExpandableBlockquote Type = "expandable_blockquote"
	Code                 Type = "code" // monowidth string
	Pre                  Type = "pre"  // monowidth block
	TextLink             Type = "text_link"
	TextMention          Type = "text_mention"
	CustomEmoji          Type = "custom_emoji"
)

// Entity represents a Telegram message entity. It defines the type and
// location of a formatted part of the message text. See
// https://core.telegram.org/bots/api#messageentity.
type Entity struct {
	Type Type `json:"type"`
	// Offset in UTF-16 code units to the start of the entity.
	Offset int `json:"offset"`
	// Length of the entity in UTF-16 code units.
	Length int `json:"length"`
	// Optional. For “text_link” only, URL that will be opened after user taps on
	// the text.
	URL string `json:"url,omitempty"`
	// Optional. For “pre” only, the programming language of the entity text.
	Language string `json:"language,omitempty"`
}

// FromMarkdown converts a Markdown text to a [Message].
func FromMarkdown(text string) Message {
	p := markdown.Parser{Strikethrough: true}
	md := p.Parse(text)

	c := &converter{}
	for _, b := range md.Blocks {
		c.block(b)
	}

	return Message{
		Text:     strings.TrimSuffix(c.sb.String(), "\n"),
		Entities: c.entities,
	}
}

type converter struct {
	sb       strings.Builder
	entities []Entity
}

func (c *converter) offset() int { return utf16len(c.sb.String()) }

// wrap records an entity of type typ spanning everything f writes.
func (c *converter) wrap(typ Type, f func(), trim int) *Entity {
	offset := c.offset()
	f()
	c.entities = append(c.entities, Entity{
		Type:   typ,
		Offset: offset,
		Length: c.offset() - offset - trim,
	})
	return &c.entities[len(c.entities)-1]
}

func (c *converter) block(b markdown.Block) {
	switch block := b.(type) {
	case *markdown.Paragraph:
		c.inlines(block.Text.Inline)
		c.sb.WriteString("\n")
	case *markdown.Quote:
		c.wrap(Blockquote, func() {
			for _, b := range block.Blocks {
				c.block(b)
			}
		}, 1)
	case *markdown.CodeBlock:
		e := c.wrap(Pre, func() {
			for _, line := range block.Text {
				c.sb.WriteString(line)
				c.sb.WriteString("\n")
			}
		}, 1)
		e.Language = block.Info
	case *markdown.Heading:
		c.wrap(Bold, func() {
			c.inlines(block.Text.Inline)
			c.sb.WriteString("\n")
		}, 1)
	case *markdown.List:
		for _, itemBlock := range block.Items {
			item, ok := itemBlock.(*markdown.Item)
			if !ok {
				continue
			}
			c.sb.WriteString("• ")
			for _, b := range item.Blocks {
				c.block(b)
			}
		}
	case *markdown.ThematicBreak:
		c.sb.WriteString("⸻\n")
	}
}

func (c *converter) inlines(inlines markdown.Inlines) {
	for _, inline := range inlines {
		c.inline(inline)
	}
}

func (c *converter) inline(i markdown.Inline) {
	switch inline := i.(type) {
	case *markdown.Plain:
		c.sb.WriteString(inline.Text)
	case *markdown.Escaped:
		c.sb.WriteString(inline.Text)
	case *markdown.Strong:
		c.wrap(Bold, func() { c.inlines(inline.Inner) }, 0)
	case *markdown.Emph:
		c.wrap(Italic, func() { c.inlines(inline.Inner) }, 0)
	case *markdown.Del:
		c.wrap(Strikethrough, func() { c.inlines(inline.Inner) }, 0)
	case *markdown.Link:
		e := c.wrap(TextLink, func() { c.inlines(inline.Inner) }, 0)
		e.URL = inline.URL
	case *markdown.AutoLink:
		c.wrap(URL, func() { c.sb.WriteString(inline.Text) }, 0)
	case *markdown.Code:
		c.wrap(Code, func() { c.sb.WriteString(inline.Text) }, 0)
	case *markdown.SoftBreak, *markdown.HardBreak:
		c.sb.WriteString("\n")
	}
}

func utf16len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
