package telegram

import (
	"context"
	"log/slog"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
)

const (
	msgNotAuthorized = "Sorry, you are not authorized to use this command."
	msgStatsFailed   = "Sorry, there was an error generating the stats report."
	msgStatsReset    = "Runtime statistics have been reset."

	pollTimeoutSeconds = 60
)

// StatsService - источник отчёта для команд /stats и /reset_stats.
type StatsService interface {
	Report(ctx context.Context) (string, error)
	Reset()
}

// CommandListener обрабатывает команды боту через long polling.
type CommandListener struct {
	bot    BotClient
	sender *Sender
	stats  StatsService
	cfg    config.Provider
	logger *slog.Logger
}

// NewCommandListener создаёт новый экземпляр.
func NewCommandListener(bot BotClient, sender *Sender, stats StatsService, cfg config.Provider, logger *slog.Logger) *CommandListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandListener{
		bot:    bot,
		sender: sender,
		stats:  stats,
		cfg:    cfg,
		logger: logger,
	}
}

// Run читает обновления до отмены ctx.
func (l *CommandListener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := l.bot.GetUpdatesChan(u)
	defer l.bot.StopReceivingUpdates()

	l.logger.Info("command listener started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			l.handle(ctx, upd)
		}
	}
}

func (l *CommandListener) handle(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	command := msg.Command()
	if command != "stats" && command != "reset_stats" {
		return
	}

	user := deriveUserName(msg)
	if !l.authorized(msg.From) {
		l.logger.Warn("unauthorized command", "command", command, "user", user)
		l.reply(ctx, msg, msgNotAuthorized, "")
		return
	}

	l.logger.Info("command received", "command", command, "user", user)
	switch command {
	case "stats":
		report, err := l.stats.Report(ctx)
		if err != nil {
			l.logger.Error("build stats report failed", "error", err)
			l.reply(ctx, msg, msgStatsFailed, "")
			return
		}
		if !l.reply(ctx, msg, report, tgbotapi.ModeMarkdownV2) {
			l.reply(ctx, msg, msgStatsFailed, "")
		}
	case "reset_stats":
		l.stats.Reset()
		l.reply(ctx, msg, msgStatsReset, "")
	}
}

// authorized читает authorized_user_ids при каждой команде: пустой список
// разрешает всем.
func (l *CommandListener) authorized(from *tgbotapi.User) bool {
	allowed := config.Int64s(l.cfg, "authorized_user_ids", nil)
	if len(allowed) == 0 {
		return true
	}
	return from != nil && slices.Contains(allowed, from.ID)
}

func (l *CommandListener) reply(ctx context.Context, to *tgbotapi.Message, text, parseMode string) bool {
	chat := tgbotapi.BaseChat{ChatID: to.Chat.ID, ReplyToMessageID: to.MessageID}
	if _, err := l.sender.sendWithRetry(ctx, textMessage(chat, text, parseMode)); err != nil {
		l.logger.Error("reply failed", "chat_id", to.Chat.ID, "error", err)
		return false
	}
	return true
}
