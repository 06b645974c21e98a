package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/formatter"
)

// Publisher публикует статьи в канал telegram_channel_id.
type Publisher struct {
	sender *Sender
	cfg    config.Provider
	logger *slog.Logger
}

// NewPublisher создаёт новый экземпляр.
func NewPublisher(sender *Sender, cfg config.Provider, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sender: sender, cfg: cfg, logger: logger}
}

// Publish отправляет пост и возвращает id сообщения в канале.
//
// Без картинки - одно текстовое сообщение. С картинкой: если весь текст
// помещается в подпись - одно фото; иначе, если текст помещается в лимит
// сообщения, - фото с заголовком и ответом на него полным текстом (id
// возвращается от фото); иначе - только текст.
func (p *Publisher) Publish(ctx context.Context, post formatter.Post) (int64, error) {
	chat, err := chatTarget(config.String(p.cfg, "telegram_channel_id", ""))
	if err != nil {
		return 0, err
	}
	text := post.Text()
	if text == "" {
		return 0, fmt.Errorf("empty post")
	}

	if post.ImageURL == "" {
		return p.sendText(ctx, chat, text, 0)
	}

	textLen := formatter.UTF16Len(text)
	switch {
	case textLen <= formatter.TelegramMaxCaptionLength:
		id, err := p.sendPhoto(ctx, chat, post.ImageURL, text)
		if err == nil {
			return id, nil
		}
		p.logger.Warn("photo post failed, sending text only", "image", post.ImageURL, "error", err)
		return p.sendText(ctx, chat, text, 0)

	case textLen <= formatter.TelegramMaxMessageLength && formatter.UTF16Len(post.Title) <= formatter.TelegramMaxCaptionLength:
		photoID, err := p.sendPhoto(ctx, chat, post.ImageURL, post.Title)
		if err != nil {
			p.logger.Warn("photo post failed, sending text only", "image", post.ImageURL, "error", err)
			return p.sendText(ctx, chat, text, 0)
		}
		if _, err := p.sendText(ctx, chat, text, photoID); err != nil {
			// Фото уже в канале: считаем пост опубликованным.
			p.logger.Error("text reply to photo failed", "photo_message_id", photoID, "error", err)
		}
		return photoID, nil

	default:
		return p.sendText(ctx, chat, text, 0)
	}
}

func (p *Publisher) sendText(ctx context.Context, chat tgbotapi.BaseChat, text string, replyTo int64) (int64, error) {
	chat.ReplyToMessageID = int(replyTo)
	sent, err := p.sender.sendWithRetry(ctx, textMessage(chat, text, tgbotapi.ModeMarkdownV2))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return int64(sent.MessageID), nil
}

func (p *Publisher) sendPhoto(ctx context.Context, chat tgbotapi.BaseChat, imageURL, caption string) (int64, error) {
	sent, err := p.sender.sendWithRetry(ctx, photoMessage(chat, imageURL, caption))
	if err != nil {
		return 0, fmt.Errorf("send photo: %w", err)
	}
	return int64(sent.MessageID), nil
}
