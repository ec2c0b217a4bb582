package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	cmdpkg "github.com/stupiduntilnot/lmrelay/internal/commander"
	"github.com/stupiduntilnot/lmrelay/internal/config"
	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
	"github.com/stupiduntilnot/lmrelay/internal/control"
	"github.com/stupiduntilnot/lmrelay/internal/db"
	"github.com/stupiduntilnot/lmrelay/internal/dummy"
	"github.com/stupiduntilnot/lmrelay/internal/metrics"
	modelpkg "github.com/stupiduntilnot/lmrelay/internal/model"
	"github.com/stupiduntilnot/lmrelay/internal/openai"
	"github.com/stupiduntilnot/lmrelay/internal/relay"
	"github.com/stupiduntilnot/lmrelay/internal/telegram"
)

func main() {
	dotenvErr := godotenv.Load()

	cfg, err := config.LoadRelayConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg)
	if dotenvErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, database, err := newRecorder(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event log")
	}
	if database != nil {
		defer database.Close()
	}

	commander, err := newCommander(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init commander")
	}
	modelProvider, err := newModelProvider(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init model provider")
	}

	botUsername := lookupBotUsername(ctx, commander)

	store := ctxpkg.NewMemoryStore()
	m := metrics.New(store.Len)
	handler := relay.NewHandler(relay.Options{
		Store:        store,
		Assembler:    &ctxpkg.StandardAssembler{},
		Provider:     modelProvider,
		Commander:    commander,
		SystemPrompt: cfg.SystemPrompt,
		BotUsername:  botUsername,
		Recorder:     recorder,
		Metrics:      m,
		Logger:       log.Logger.With().Str("component", "relay").Logger(),
	})

	p := &poller{
		commander:   commander,
		handler:     handler,
		breaker:     control.NewCircuitBreaker(5, 30*time.Second),
		recorder:    recorder,
		metrics:     m,
		timeout:     cfg.PollTimeout,
		sleep:       time.Duration(cfg.SleepSeconds) * time.Second,
		concurrency: cfg.Concurrency,
		logger:      log.Logger.With().Str("component", "poller").Logger(),
	}

	var offset int64
	if cfg.DropPending {
		offset, err = p.dropPending(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to drop pending updates")
		}
	}

	log.Info().
		Str("model", cfg.Model).
		Str("api", cfg.InferenceURL).
		Str("provider", cfg.ModelProvider).
		Str("platform", cfg.Platform).
		Msg("relay running")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, m.Handler())
	}
	g.Go(func() error {
		return p.run(gctx, offset)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		recorder.Record(db.EventProcessStopped, map[string]any{"error": err.Error()})
		log.Fatal().Err(err).Msg("relay stopped")
	}
	recorder.Record(db.EventProcessStopped, nil)
	log.Info().Msg("relay shutdown complete")
}

func setupLogger(cfg config.RelayConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
}

// newRecorder opens the event log when a database path is configured.
func newRecorder(cfg config.RelayConfig) (db.Recorder, *sql.DB, error) {
	if cfg.DBPath == "" {
		return db.NopRecorder{}, nil, nil
	}
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	processEventID, err := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{
		"pid":      os.Getpid(),
		"provider": cfg.ModelProvider,
		"platform": cfg.Platform,
		"model":    cfg.Model,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	logger := log.Logger.With().Str("component", "eventlog").Logger()
	return db.NewEventLog(database, &processEventID, logger), database, nil
}

func newCommander(cfg *config.RelayConfig) (cmdpkg.Commander, error) {
	switch cfg.Platform {
	case "telegram":
		return telegram.NewClient(cfg.TelegramBotURL(), time.Duration(cfg.PollTimeout+20)*time.Second), nil
	case "dummy":
		return dummy.NewCommander(cfg.DummyCommanderScript, cfg.DummySendScript)
	default:
		return nil, errors.Newf("unsupported platform: %s", cfg.Platform)
	}
}

// lookupBotUsername asks Telegram for the bot's @name so commands addressed to
// other bots in group chats can be ignored.
func lookupBotUsername(ctx context.Context, commander cmdpkg.Commander) string {
	tg, ok := commander.(*telegram.Client)
	if !ok {
		return ""
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to look up bot username, accepting commands for any bot")
		return ""
	}
	log.Info().Str("username", me.Username).Msg("bot identity resolved")
	return me.Username
}

func newModelProvider(cfg *config.RelayConfig) (modelpkg.Provider, error) {
	switch cfg.ModelProvider {
	case "openai":
		timeout := time.Duration(cfg.InferenceTimeoutSeconds) * time.Second
		return openai.NewClient(cfg.InferenceAPIKey, cfg.InferenceURL, cfg.Model, cfg.Temperature, timeout), nil
	case "dummy":
		return dummy.NewProvider(cfg.Model, cfg.DummyProviderScript)
	default:
		return nil, errors.Newf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
