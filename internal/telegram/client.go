package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotClient определяет интерфейс для работы с Telegram Bot API.
// Это позволяет легко создавать моки для тестирования.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Убеждаемся, что BotAPI реализует интерфейс BotClient.
var _ BotClient = (*tgbotapi.BotAPI)(nil)

// NewClient создаёт клиента Bot API. token обязателен.
func NewClient(token string) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return bot, nil
}

// chatTarget превращает идентификатор чата из конфигурации в BaseChat:
// число - chat_id, иначе имя канала вида @channel.
func chatTarget(chat string) (tgbotapi.BaseChat, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return tgbotapi.BaseChat{}, fmt.Errorf("chat_id is empty")
	}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}, nil
	}
	if !strings.HasPrefix(chat, "@") {
		chat = "@" + chat
	}
	return tgbotapi.BaseChat{ChannelUsername: chat}, nil
}

func textMessage(chat tgbotapi.BaseChat, text, parseMode string) tgbotapi.MessageConfig {
	return tgbotapi.MessageConfig{
		BaseChat:  chat,
		Text:      text,
		ParseMode: parseMode,
	}
}

func photoMessage(chat tgbotapi.BaseChat, imageURL, caption string) tgbotapi.PhotoConfig {
	return tgbotapi.PhotoConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: chat,
			File:     tgbotapi.FileURL(imageURL),
		},
		Caption:   caption,
		ParseMode: tgbotapi.ModeMarkdownV2,
	}
}

// deriveUserName возвращает читаемое имя автора сообщения для логов.
func deriveUserName(msg *tgbotapi.Message) string {
	if msg.From != nil {
		if msg.From.UserName != "" {
			return msg.From.UserName
		}
		if name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName); name != "" {
			return name
		}
	}
	if msg.Chat != nil {
		if msg.Chat.Title != "" {
			return msg.Chat.Title
		}
		return fmt.Sprintf("chat-%d", msg.Chat.ID)
	}
	return "unknown"
}
