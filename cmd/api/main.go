package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/handler"
	"github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/internal/service/reply"
	"github.com/sniprx/assistant/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	sessions, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open session store")
	}
	defer sessions.Close()

	engine := newEngine(ctx, cfg)
	chatService := chat.NewService(sessions, engine)

	router := handler.NewRouter(chatService, handler.Info{
		Mode:  string(engine.Mode()),
		Store: cfg.Store.Driver,
	})

	startServer(ctx, cfg.Server, router)
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// newEngine selects the first configured provider. A provider that cannot be built leaves the
// engine in mock mode.
func newEngine(ctx context.Context, cfg *config.Config) *reply.Engine {
	mock := reply.NewMockProvider(cfg.Mock.ChunkSize, cfg.Mock.ChunkInterval)

	switch cfg.Provider() {
	case config.ProviderOpenAI:
		log.Info().Str("model", cfg.OpenAI.Model).Str("base_url", cfg.OpenAI.BaseURL).Msg("replies proxied to OpenAI")
		return reply.NewEngine(reply.NewOpenAIProvider(cfg.OpenAI, nil), mock)
	case config.ProviderArk:
		ark, err := reply.NewArkProvider(ctx, cfg.Ark)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Ark model, continuing with mock replies")
			return reply.NewEngine(nil, mock)
		}
		log.Info().Str("model", cfg.Ark.Model).Msg("replies generated by Ark")
		return reply.NewEngine(ark, mock)
	case config.ProviderGemini:
		gemini, err := reply.NewGeminiProvider(ctx, cfg.Gemini)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Gemini client, continuing with mock replies")
			return reply.NewEngine(nil, mock)
		}
		log.Info().Str("model", cfg.Gemini.Model).Msg("replies generated by Gemini")
		return reply.NewEngine(gemini, mock)
	default:
		log.Info().
			Int("chunk_size", cfg.Mock.ChunkSize).
			Dur("chunk_interval", cfg.Mock.ChunkInterval).
			Msg("no model credentials configured, serving mock replies")
		return reply.NewEngine(nil, mock)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("SniprX assistant backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
