// Package bot connects the handlers to Telegram: it owns the telebot
// instance, registers middleware and routes, and implements the chat
// surface, the moderation executor and the user directory on top of the
// Bot API.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/config"
	"anya-bot/internal/game"
	"anya-bot/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot       *tele.Bot
	cfg       *config.Config
	directory *UserDirectory
	handler   *handler.Handler
	games     *game.Registry
}

// Dependencies holds what the bot needs beyond its own Telegram client.
type Dependencies struct {
	Config    *config.Config
	Directory *UserDirectory
	Handler   *handler.Handler
	Games     *game.Registry
}

// NewTelebot creates the Telegram client. It is separate from New so the
// surface and moderator can be built on it before the handlers exist.
func NewTelebot(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil && c.Chat() != nil {
				ev = ev.Int64("chat_id", c.Chat().ID)
			}
			ev.Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers middleware and handlers on teleBot.
func New(teleBot *tele.Bot, deps *Dependencies) *Bot {
	b := &Bot{
		bot:       teleBot,
		cfg:       deps.Config,
		directory: deps.Directory,
		handler:   deps.Handler,
		games:     deps.Games,
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.directory))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handler.HandleHelp)
	b.bot.Handle("/help", b.handler.HandleHelp)

	for _, command := range b.games.Commands() {
		b.bot.Handle("/"+command, b.handler.HandleGame)
	}
	b.bot.Handle("/quit_blackjack", b.handler.HandleQuitBlackjack)

	b.bot.Handle("/roleplay", b.handler.HandleRoleplay)
	b.bot.Handle("/roleplay_preset", b.handler.HandleRoleplayPreset)
	b.bot.Handle("/end_roleplay", b.handler.HandleEndRoleplay)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/modlog", b.handler.HandleModLog)

	b.bot.Handle(tele.OnText, b.handler.HandleText)
	b.bot.Handle(tele.OnCallback, b.handler.HandleCallback)
	b.bot.Handle(tele.OnUserLeft, b.handleUserLeft)
}

// handleUserLeft forgets a chat's usernames when the bot is removed from it.
func (b *Bot) handleUserLeft(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.UserLeft == nil || b.bot.Me == nil {
		return nil
	}
	if msg.UserLeft.ID == b.bot.Me.ID {
		b.directory.Forget(msg.Chat.ID)
		log.Info().Int64("chat_id", msg.Chat.ID).Msg("Removed from chat")
	}
	return nil
}

// Start starts the bot polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
