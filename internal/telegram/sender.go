package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// telegramRateLimit - лимит Telegram Bot API: 30 сообщений в секунду
	telegramRateLimitPerSecond = 30
	// retryAttempts - количество попыток отправки при ошибке
	retryAttempts = 3
	// retryDelay - задержка между попытками
	retryDelay = 2 * time.Second
	// rateLimitDelay - минимальная задержка между сообщениями для соблюдения rate limit
	rateLimitDelay = time.Second / telegramRateLimitPerSecond // ~33ms между сообщениями
)

// Sender отправляет сообщения через Bot API с повторами.
type Sender struct {
	bot        BotClient
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewSender создаёт новый экземпляр отправителя.
func NewSender(bot BotClient, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		bot:        bot,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Send отправляет каждое сообщение каждому чату с учётом rate limits и
// retry-логики. Ошибка одного чата не прерывает рассылку.
func (s *Sender) Send(ctx context.Context, chatIDs []int64, messages []string) error {
	if len(chatIDs) == 0 {
		return fmt.Errorf("no recipients provided")
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages to send")
	}

	total := len(chatIDs) * len(messages)
	sentCount := 0
	lastSentTime := time.Now()

	for _, chatID := range chatIDs {
		for _, message := range messages {
			// Контроль rate limit: минимальная задержка между сообщениями
			elapsed := time.Since(lastSentTime)
			if elapsed < rateLimitDelay {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(rateLimitDelay - elapsed):
				}
			}

			msg := textMessage(tgbotapi.BaseChat{ChatID: chatID}, message, tgbotapi.ModeMarkdownV2)
			if _, err := s.sendWithRetry(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("send message failed", "chat_id", chatID, "attempts", retryAttempts, "error", err)
				continue
			}

			sentCount++
			lastSentTime = time.Now()
		}
	}

	s.logger.Info("messages sent", "sent", sentCount, "total", total)
	return nil
}

// sendWithRetry отправляет сообщение с повторными попытками при ошибках.
func (s *Sender) sendWithRetry(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	var lastErr error

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			// Задержка перед повтором (линейная с максимумом)
			delay := s.retryDelay * time.Duration(attempt)
			if after := retryAfter(lastErr); after > delay {
				delay = after
			}
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}

			select {
			case <-ctx.Done():
				return tgbotapi.Message{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		sent, err := s.bot.Send(msg)
		if err == nil {
			return sent, nil
		}

		lastErr = err

		// Для некоторых ошибок (например, чат не найден, бот заблокирован) повтор не поможет
		if !isRetryableError(err) {
			return tgbotapi.Message{}, err
		}
		s.logger.Warn("telegram send failed, retrying", "attempt", attempt+1, "error", err)
	}

	return tgbotapi.Message{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryAfter достаёт подсказку retry_after из ответа 429.
func retryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// isRetryableError определяет, можно ли повторить отправку при данной ошибке.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Ошибки, при которых повтор не поможет
	nonRetryableErrors := []string{
		"chat not found",
		"bot was blocked",
		"user is deactivated",
		"chat_id is empty",
		"message is too long",
		"bad request",
		"can't parse entities",
		"unauthorized",
	}

	for _, nonRetryable := range nonRetryableErrors {
		if containsIgnoreCase(errStr, nonRetryable) {
			return false
		}
	}

	// По умолчанию считаем ошибку повторяемой (сетевые ошибки, временные проблемы API)
	return true
}

// containsIgnoreCase проверяет, содержит ли строка подстроку (без учёта регистра).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
