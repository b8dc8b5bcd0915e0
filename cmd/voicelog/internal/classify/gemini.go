// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package classify

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.astrophena.name/voicelog/internal/api/google/gemini"
)

// DefaultModel is the model used by [Gemini] by default.
const DefaultModel = "gemini-2.5-flash"

const systemPrompt = `Ты ассистент, который разбирает расшифровки голосовых сообщений и извлекает из них задачи, заметки и идеи.

Для каждого сообщения:
1. Определи, задача это, заметка или идея.
2. Определи действие: добавить (add), изменить (edit), удалить (delete), выполнить (complete), заметка (note) или идея (idea).
3. Извлеки основное содержание без слов-паразитов.
4. Назначь приоритет, если он упомянут.
5. Извлеки теги или категории.

Для действий delete и complete в content укажи, о какой задаче идёт речь.

Отвечай только JSON-объектом:
{
  "isTask": boolean,
  "action": "add" | "edit" | "delete" | "complete" | "note" | "idea",
  "content": "очищенное содержание",
  "priority": "low" | "medium" | "high" | null,
  "tags": ["тег"],
  "confidence": число от 0 до 1
}

Примеры:
- "Добавить уборку в мой список дел" → {"isTask": true, "action": "add", "content": "Сделать уборку", "priority": null, "tags": [], "confidence": 0.9}
- "Не забыть купить молоко" → {"isTask": true, "action": "add", "content": "Купить молоко", "priority": null, "tags": ["покупки"], "confidence": 0.8}
- "Позвонить маме завтра" → {"isTask": true, "action": "add", "content": "Позвонить маме завтра", "priority": "medium", "tags": ["семья"], "confidence": 0.9}
- "Я купил молоко, отметь задачу" → {"isTask": true, "action": "complete", "content": "молоко", "priority": null, "tags": [], "confidence": 0.8}
- "Заметка: встреча в 3 часа" → {"isTask": false, "action": "note", "content": "Встреча в 3 часа", "priority": null, "tags": [], "confidence": 0.8}
- "У меня есть идея для проекта" → {"isTask": false, "action": "idea", "content": "У меня есть идея для проекта", "priority": null, "tags": [], "confidence": 0.7}`

// Gemini classifies messages with a Gemini model.
type Gemini struct {
	Client *gemini.Client
	// Model defaults to DefaultModel.
	Model string
}

var _ Classifier = (*Gemini)(nil)

// Analyze implements [Classifier].
func (g *Gemini) Analyze(ctx context.Context, text string) (Analysis, error) {
	temperature := 0.5
	resp, err := g.Client.GenerateContent(ctx, cmp.Or(g.Model, DefaultModel), gemini.GenerateContentParams{
		SystemInstruction: &gemini.Content{Parts: []*gemini.Part{{Text: systemPrompt}}},
		Contents: []*gemini.Content{{
			Role:  "user",
			Parts: []*gemini.Part{{Text: text}},
		}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      &temperature,
			MaxOutputTokens:  2500,
		},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("classify: %w", err)
	}
	out, err := resp.Text()
	if err != nil {
		return Analysis{}, fmt.Errorf("classify: %w", err)
	}

	var a Analysis
	if err := json.Unmarshal([]byte(stripFence(out)), &a); err != nil {
		return Analysis{}, fmt.Errorf("classify: decoding model response: %w", err)
	}
	return sanitize(a, text), nil
}

// stripFence removes a Markdown code fence around s, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
