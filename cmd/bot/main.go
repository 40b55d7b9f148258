// Package main is the entry point for the companion bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"anya-bot/internal/bot"
	"anya-bot/internal/completion"
	"anya-bot/internal/config"
	"anya-bot/internal/conversation"
	"anya-bot/internal/game"
	"anya-bot/internal/game/blackjack"
	"anya-bot/internal/game/minesweeper"
	"anya-bot/internal/game/roulette"
	"anya-bot/internal/handler"
	"anya-bot/internal/metrics"
	"anya-bot/internal/moderation"
	"anya-bot/internal/pkg/db"
	"anya-bot/internal/repository"
	"anya-bot/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, m)
		metricsServer.Start()
	}

	// The audit log is the only thing stored, so the bot runs without it.
	var (
		dbPool    *db.Pool
		auditRepo *repository.AuditRepository
	)
	if cfg.Database.Enabled {
		dbPool, err = db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		auditRepo = repository.NewAuditRepository(dbPool.Pool)
	}

	client := completion.NewHTTPClient(cfg.Completion.URL, cfg.Completion.Timeout, nil)
	guard := completion.NewGuard(client, completion.Limits{
		GlobalLimit:  cfg.Completion.GlobalLimit,
		GlobalWindow: cfg.Completion.GlobalWindow,
		UserLimit:    cfg.Completion.UserLimit,
		UserWindow:   cfg.Completion.UserWindow,
	}, m)

	sc := cfg.Sessions
	sessions := session.NewRegistry(&session.Config{
		GlobalCap:  sc.GlobalCap,
		PerUserCap: sc.PerUserCap,
		CreationLimits: map[session.Kind]int{
			session.KindConversation: sc.ConversationDailyLimit,
			session.KindGame:         sc.GameDailyLimit,
		},
		CreationWindow:       sc.CreationWindow,
		GlobalCreationLimit:  sc.GlobalCreationLimit,
		GlobalCreationWindow: sc.GlobalCreationWindow,
		MessageLimit:         sc.MessageLimit,
		MessageWindow:        sc.MessageWindow,
	}, m)

	games := game.NewRegistry()
	ms := cfg.Games.Minesweeper
	for _, g := range []game.Game{
		blackjack.NewGame(),
		minesweeper.NewGame(ms.Width, ms.Height, ms.Mines),
	} {
		if err := games.Register(g); err != nil {
			log.Fatal().Err(err).Str("game", g.Command()).Msg("Failed to register game")
		}
	}
	log.Info().
		Int("game_count", games.Count()).
		Strs("games", games.Commands()).
		Msg("Games registered")

	teleBot, err := bot.NewTelebot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	surf := bot.NewSurface(teleBot)
	moderator := bot.NewModerator(teleBot, cfg, teleBot.Me.ID)
	directory := bot.NewUserDirectory()
	chat := conversation.NewChat(guard)

	modDeps := moderation.Deps{
		Classifier: moderation.NewClassifier(
			guard,
			time.Duration(cfg.Moderation.MaxDurationMinutes)*time.Minute,
			cfg.Moderation.MaxReasonLength,
		),
		Resolver:   directory,
		Authorizer: moderator,
		Executor:   moderator,
		Surface:    surf,
		Chat:       handler.ChatFunc(chat, surf),
		Metrics:    m,
		Timeout:    cfg.Moderation.ConfirmTimeout,
	}
	if auditRepo != nil {
		modDeps.Recorder = auditRepo
	}
	pipeline := moderation.NewPipeline(modDeps)

	cleaner := handler.NewCleaner(surf, handler.DefaultNoticeTTL, handler.DefaultCleanInterval, nil)
	cleaner.OnSweep(func() {
		if n := guard.Prune(); n > 0 {
			log.Debug().Int("windows", n).Msg("Pruned idle completion windows")
		}
	})

	deps := handler.Deps{
		Config:     cfg,
		Surface:    surf,
		Sessions:   sessions,
		Games:      games,
		Completion: guard,
		Chat:       chat,
		Pipeline:   pipeline,
		Roulette:   roulette.New(guard, moderator, nil),
		Cleaner:    cleaner,
		NewID:      uuid.NewString,
	}
	if auditRepo != nil {
		deps.Audit = auditRepo
	}
	h := handler.New(deps)

	reaper := session.NewReaper(sessions, surf, sc.ReapInterval, sc.IdleTimeout)
	reaper.OnExpired(h.OnSessionExpired)
	reaper.Start(ctx)
	cleaner.Start(ctx)

	telegramBot := bot.New(teleBot, &bot.Dependencies{
		Config:    cfg,
		Directory: directory,
		Handler:   h,
		Games:     games,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	reaper.Stop()
	cleaner.Stop()
	pipeline.Close()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
		shutdownCancel()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	log.Info().Msg("Bot stopped gracefully")
}
