package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-client/internal/config"
	"chat-client/internal/db"
	"chat-client/internal/handlers"
	"chat-client/internal/history"
	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/observability"
	"chat-client/internal/protocol"
	"chat-client/internal/repositories"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
	"chat-client/internal/ws"
)

const serviceName = "chat-client"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile     string
		controlAddr string
		logLevel    string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Real-time chat client with a local control API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("control-addr") {
				cfg.ControlAddr = controlAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := newLogger(cfg.LogLevel)
			if err := run(cmd.Context(), cfg, debug, logger); err != nil {
				logger.Error().Err(err).Msg("chat client stopped")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.Flags().StringVar(&controlAddr, "control-addr", "", "listen address of the control API (overrides CONTROL_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug routes")
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

func run(parent context.Context, cfg config.Config, debug bool, logger zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return errors.Wrap(err, "setup tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	defer publisher.Close()
	logger.Info().Str("mode", observability.PublisherMode(publisher)).Msg("event publisher ready")

	ids := identity.NewStore()
	if err := loadIdentity(ctx, cfg, ids, logger); err != nil {
		return err
	}

	notices := notify.NewCenter(0, logger)
	emitter := telemetry.NewAuditEmitter(publisher, "", serviceName, cfg.Environment, logger)
	detach := emitter.Attach(notices, func() *string {
		if me, ok := ids.Current(); ok {
			return &me.UserID
		}
		return nil
	})
	defer detach()

	publicHistory, privateHistory, closeHistory, err := historySources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	dialer := ws.NewGorillaDialer(cfg.HandshakeTimeout, nil)
	base := session.Deps{
		Dialer:   dialer,
		Identity: ids,
		Notices:  notices,
		Clock:    clock.New(),
		Logger:   logger,
	}

	sessions := map[string]handlers.ChatSession{}
	var running []*session.Session

	open := func(ch protocol.Channel, url string, src history.Source) {
		deps := base
		deps.History = src
		s := session.New(session.Config{
			Channel:      ch,
			BaseURL:      url,
			HistoryLimit: cfg.HistoryLimit,
		}, deps)
		go func() {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("channel", string(ch)).Msg("session loop stopped")
			}
		}()
		if err := s.Resync(ctx); err != nil {
			logger.Warn().Err(err).Str("channel", string(ch)).Msg("initial history load failed")
		}
		s.EnsureConnected()
		sessions[string(ch)] = s
		running = append(running, s)
	}

	open(protocol.Public, cfg.PublicWSURL, publicHistory)
	if cfg.PrivateWSURL != "" {
		open(protocol.Private, cfg.PrivateWSURL, privateHistory)
	}
	defer func() {
		for _, s := range running {
			s.Close()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	control := handlers.NewControlHandler(sessions, notices, logger)
	engine := handlers.NewEngine(control, handlers.EngineOptions{
		Service: serviceName,
		Token:   cfg.ControlToken,
		Debug:   debug,
		Emitter: emitter,
	})

	srv := &http.Server{
		Addr:              cfg.ControlAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ControlAddr).Msg("control api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "control api")
		}
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func loadIdentity(ctx context.Context, cfg config.Config, ids *identity.Store, logger zerolog.Logger) error {
	if cfg.SessionToken != "" {
		resolver := identity.NewResolver(cfg.BackendURL, cfg.IdentityPath)
		me, err := resolver.Resolve(ctx, cfg.SessionToken)
		if err != nil {
			return errors.Wrap(err, "resolve identity")
		}
		ids.Set(me)
		logger.Info().Str("user_id", me.UserID).Msg("identity resolved")
		return nil
	}

	if !ids.Set(models.Identity{UserID: cfg.UserID, UserName: cfg.UserName}) {
		logger.Warn().Msg("no identity configured, sockets stay closed until one is set")
	}
	return nil
}

func historySources(ctx context.Context, cfg config.Config, logger zerolog.Logger) (history.Source, history.Source, func(), error) {
	if cfg.HistoryDSN != "" {
		database, err := db.Connect(ctx, cfg.HistoryDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info().Msg("history served from database replica")
		return repositories.NewHistoryRepo(database, string(protocol.Public)),
			repositories.NewHistoryRepo(database, string(protocol.Private)),
			func() { _ = database.Close() },
			nil
	}

	return history.NewHTTPSource(cfg.BackendURL, cfg.PublicHistoryPath, cfg.SessionToken),
		history.NewHTTPSource(cfg.BackendURL, cfg.PrivateHistoryPath, cfg.SessionToken),
		func() {},
		nil
}
