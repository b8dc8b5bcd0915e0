// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"fmt"
	"math"
	"strings"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/post"
)

// Replies sent as plain text. They are escaped before sending.
const (
	msgWelcomeBack = "👋 С возвращением! Отправьте голосовое сообщение, и я добавлю его в сегодняшний пост в вашем канале."

	msgAskChannel = "👋 Привет! Я превращаю голосовые сообщения в задачи, заметки и идеи.\n\n" +
		"Чтобы начать:\n" +
		"1. Создайте приватный канал\n" +
		"2. Добавьте меня в него администратором\n\n" +
		"Я сам запомню канал. Или отправьте /setchannel <channel_id>"

	msgChannelSaved = "✅ Канал сохранен! Теперь отправляйте голосовые сообщения, и я буду добавлять их в ежедневный пост."

	msgNotAdmin = "🤖 Бот добавлен в канал, но не как администратор.\n\n" +
		"Для работы бота необходимо:\n" +
		"1. Удалить бота из канала\n" +
		"2. Добавить его снова с правами администратора\n\n" +
		"Или вручную назначьте его администратором в настройках канала."

	msgTextNotSupported = "🎤 Я понимаю только голосовые сообщения. Запишите голосовое, и я добавлю его в канал."

	msgSetChannelUsage = "❗ Использование: /setchannel <channel_id>\n\n" +
		"Как получить channel_id:\n" +
		"1. Добавьте бота в приватный канал\n" +
		"2. Назначьте его администратором\n" +
		"3. Напишите @userinfobot в канале\n" +
		"4. Или проверьте логи бота при добавлении"

	msgBadChannelID = "❌ Неверный формат channel_id. Используйте только числа."

	msgChannelRemoved = "✅ Канал удален из конфигурации\n\n" +
		"Теперь вам нужно будет заново настроить канал, отправив боту:\n" +
		"/setchannel <channel_id>"

	msgRateLimited = "⏳ Слишком много сообщений. Подождите минуту и попробуйте снова."

	msgProcessingVoice = "🎤 Обрабатываю голосовое сообщение..."
	msgTranscribing    = "📝 Расшифровываю..."
	msgAnalyzing       = "🤖 Анализирую..."
	msgAddingToChannel = "📤 Добавляю в канал..."

	msgNothingToAdd = "🤔 Не расслышал ничего, что стоит записать. Попробуйте сказать еще раз."

	msgNoPostToday = "📭 Сегодня еще ничего не записано."

	msgConfigError = "❌ Ошибка при получении конфигурации пользователя. Попробуйте /start"
)

// Replies sent as Markdown.
const (
	mdHelp = "**Как пользоваться ботом**\n\n" +
		"Отправьте голосовое сообщение, и я добавлю его в сегодняшний пост в вашем канале как задачу, заметку или идею.\n\n" +
		"Чтобы отметить задачу выполненной, скажите, например, «я купил молоко, отметь задачу».\n\n" +
		"**Команды**\n\n" +
		"- /today: сегодняшний пост\n" +
		"- /done `текст`: отметить задачу выполненной\n" +
		"- /delete `текст`: удалить задачу\n" +
		"- /clear: удалить сегодняшний пост\n" +
		"- /setchannel `id`: выбрать канал\n" +
		"- /removechannel: забыть канал\n" +
		"- /status: возможности бота\n" +
		"- /debug: сохраненные настройки"

	mdStatus = "**Статус**\n\n" +
		"- Расшифровка голосовых сообщений\n" +
		"- Определение задач, заметок и идей\n" +
		"- Приоритеты и теги\n" +
		"- Один пост на каждый день"

	mdClearSuccess = "🗑 **Сегодняшний пост удален.** Следующее голосовое сообщение начнет новый."
	mdClearNothing = "🤷 **Нечего удалять.** Сегодня пост еще не создавался."
	mdClearError   = "❌ **Не удалось удалить пост.** Попробуйте еще раз позже."
)

var sectionNames = map[post.Section]string{
	post.Tasks: "Задача",
	post.Notes: "Заметка",
	post.Ideas: "Идея",
}

func formatAdded(s post.Section, it post.Item, confidence float64) string {
	return fmt.Sprintf("✅ %s добавлена в канал!\n\n📝 Содержимое: %s\n🎯 Уверенность: %d%%",
		sectionNames[s], plainLine(it), int(math.Round(confidence*100)))
}

// plainLine is like post.RenderLine, but without markup.
func plainLine(it post.Item) string {
	parts := []string{it.Text}
	if m := it.Priority.Marker(); m != "" {
		parts = append([]string{m}, parts...)
	}
	for _, tag := range it.Tags {
		parts = append(parts, "#"+tag)
	}
	return strings.Join(parts, " ")
}

func formatTaskResult(done bool, query string, res post.TaskResult) string {
	switch {
	case res.Success && done:
		return "✅ Задача выполнена: " + res.Task
	case res.Success:
		return "🗑 Задача удалена: " + res.Task
	case res.Task != "":
		return "ℹ️ Задача уже выполнена: " + res.Task
	}
	return "🔍 Не нашел задачу «" + query + "»."
}

func formatError(err error) string {
	return "❌ Извините, произошла ошибка при обработке вашего голосового сообщения.\n\n" +
		"Ошибка: " + err.Error() + "\n\n" +
		"Пожалуйста, попробуйте еще раз или обратитесь в поддержку, если проблема продолжается."
}

func formatDebug(userID int64, channelID string, waiting bool) string {
	if channelID == "" {
		channelID = "не задан"
	}
	return fmt.Sprintf("🔍 Отладочная информация:\n"+
		"- ID пользователя: %d\n"+
		"- ID канала: %s\n"+
		"- Ожидается ID канала: %v\n\n"+
		"Если канал не определился автоматически, используйте /setchannel <channel_id>",
		userID, channelID, waiting)
}

func formatChannelSet(channelID string) string {
	return "✅ Channel ID установлен: " + channelID + "\n\n" +
		"Теперь вы можете отправлять голосовые сообщения для создания задач!"
}
