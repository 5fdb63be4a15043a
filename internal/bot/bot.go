package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/router"
)

// DeviceID tags every message that arrives through Telegram.
const DeviceID = "telegram"

const historyLimit = 5

type Bot struct {
	api    *tgbotapi.BotAPI
	router *router.Router
	logger *zap.Logger
	locks  *userLocks
}

func New(token string, debug bool, r *router.Router, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		api:    api,
		router: r,
		logger: logger,
		locks:  newUserLocks(),
	}, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	unlock := b.locks.lock(message.From.ID)
	defer unlock()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	userID := userKey(message.From.ID)
	session, err := b.router.LoadOrCreateSession(ctx, userID, DeviceID)
	if err != nil {
		b.logger.Error("Failed to load session",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load our conversation. Please try again.")
		return
	}
	profile, err := b.router.LoadProfile(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load profile",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your profile. Please try again.")
		return
	}

	result, err := b.router.ProcessTurn(ctx, session, content, profile)
	if err != nil {
		b.logger.Error("Failed to process turn",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, router.ReplyModelFallback)
		return
	}

	reply := tgbotapi.NewMessage(message.Chat.ID, result.AssistantMessage.Content)
	reply.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "clear":
		b.handleClear(ctx, message)
	case "sync":
		b.handleSync(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	case "profile":
		b.handleProfile(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Hi, I'm Finley! 💰
I help students learn how money, saving and investing work.

Ask me anything, like "What is compound interest?" or "How do index funds work?".
Tell me a bit about yourself with /profile so I can explain things at the right level.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/history - Show your recent messages
/clear - Start a fresh conversation
/sync - Bring in your conversations from other devices
/profile - Show your profile
/profile age=15 experience=beginner risk=low budget=50 goals=college,car interests=tech

Just send me a question to start learning!`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleClear(ctx context.Context, message *tgbotapi.Message) {
	userID := userKey(message.From.ID)
	session, err := b.router.LoadOrCreateSession(ctx, userID, DeviceID)
	if err == nil {
		_, err = b.router.ClearSession(ctx, session)
	}
	if err != nil {
		b.logger.Error("Failed to clear session",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't clear our conversation.")
		return
	}
	b.sendMessage(message.Chat.ID, "Done! Let's start fresh. What would you like to learn about?")
}

func (b *Bot) handleSync(ctx context.Context, message *tgbotapi.Message) {
	userID := userKey(message.From.ID)
	result, err := b.router.SyncDevices(ctx, userID, DeviceID)
	if err != nil {
		b.logger.Error("Failed to sync devices",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't sync your devices.")
		return
	}
	if result.Skipped {
		b.sendMessage(message.Chat.ID, "Everything is already up to date.")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Synced %d device(s). Your conversation now has %d messages.",
		result.DeviceCount, len(result.Session.Messages)))
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	userID := userKey(message.From.ID)
	session, err := b.router.LoadOrCreateSession(ctx, userID, DeviceID)
	if err != nil {
		b.logger.Error("Failed to load session",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your message history.")
		return
	}

	if len(session.Messages) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatHistory(session.Messages, historyLimit))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleProfile(ctx context.Context, message *tgbotapi.Message) {
	userID := userKey(message.From.ID)
	profile, err := b.router.LoadProfile(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load profile",
			zap.Error(err),
			zap.String("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your profile.")
		return
	}

	if args := strings.TrimSpace(message.CommandArguments()); args != "" {
		profile, err = applyProfileArgs(profile, args)
		if err != nil {
			b.sendErrorMessage(message.Chat.ID, err.Error())
			return
		}
		if err := b.router.SaveProfile(ctx, profile); err != nil {
			b.logger.Error("Failed to save profile",
				zap.Error(err),
				zap.String("user_id", userID))
			b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't save your profile.")
			return
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatProfile(profile))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send profile message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// userLocks serializes turns per Telegram user.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
