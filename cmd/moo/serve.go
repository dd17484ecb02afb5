package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/mooassistant/moo/internal/app"
	"github.com/mooassistant/moo/internal/config"
	"github.com/mooassistant/moo/internal/logger"
	"github.com/mooassistant/moo/internal/state"
	"github.com/mooassistant/moo/internal/tide"
	"github.com/mooassistant/moo/internal/transport"
	"github.com/mooassistant/moo/internal/transport/linkeddevice"
	"github.com/mooassistant/moo/internal/transport/telegram"
)

const defaultLinkListenAddr = "127.0.0.1:8793"

var numericJID = regexp.MustCompile(`^[0-9]+$`)

// transports bundles the wired messaging surfaces. Telegram is present only
// when channels.telegram.botToken is configured; the linked-device endpoint
// is always available for devices to link against.
type transports struct {
	Telegram *telegram.Transport
	Linked   *linkeddevice.Transport
}

func (t transports) resolve(jid string) transport.Sender {
	if numericJID.MatchString(jid) {
		if t.Telegram == nil {
			return nil
		}
		return t.Telegram
	}
	return t.Linked
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant daemon: transports, agent loop, cron, and tide",
		RunE: func(cmd *cobra.Command, args []string) error {
			fxApp := fx.New(
				fx.Provide(
					providePaths,
					provideConfig,
					provideLogger,
					provideTransports,
					provideApp,
					provideTide,
				),
				fx.Invoke(registerLifecycle),
			)
			fxApp.Run()
			return fxApp.Err()
		},
	}
}

func providePaths() (state.Paths, error) {
	return state.Resolve()
}

func provideConfig(paths state.Paths) (config.Config, error) {
	return config.Load(paths.ConfigPath(), nil)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideTransports(log *slog.Logger, cfg config.Config) (transports, error) {
	tr := transports{Linked: linkeddevice.New(log)}
	if cfg.Channels.Telegram != nil && cfg.Channels.Telegram.BotToken != "" {
		tg, err := telegram.New(log, cfg.Channels.Telegram.BotToken)
		if err != nil {
			return transports{}, err
		}
		tr.Telegram = tg
	}
	return tr, nil
}

func provideApp(log *slog.Logger, paths state.Paths, cfg config.Config, tr transports) (*app.App, error) {
	return app.New(log, paths, cfg, tr.resolve)
}

func provideTide(a *app.App) *tide.Tide {
	return a.NewTide()
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *slog.Logger, cfg config.Config, a *app.App, tr transports, td *tide.Tide) {
	listenAddr := defaultLinkListenAddr
	if cfg.Channels.LinkedDevice != nil && cfg.Channels.LinkedDevice.ListenAddr != "" {
		listenAddr = cfg.Channels.LinkedDevice.ListenAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/link", tr.Linked.HTTPHandler())
	server := &http.Server{Addr: listenAddr, Handler: mux}

	serveCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := tr.Linked.Start(serveCtx, a.Bridge.HandlerFor(tr.Linked)); err != nil {
				return err
			}
			if tr.Telegram != nil {
				if err := tr.Telegram.Start(serveCtx, a.Bridge.HandlerFor(tr.Telegram)); err != nil {
					return err
				}
			}

			go func() {
				log.Info("linked-device endpoint listening", slog.String("addr", listenAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("linked-device endpoint failed", slog.Any("err", err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			a.Scheduler.Start(serveCtx)

			if td != nil {
				interval := time.Duration(cfg.Tide.SilenceCooldownMinutes) * time.Minute
				go func() {
					if err := td.Run(serveCtx, interval); err != nil && !errors.Is(err, context.Canceled) {
						log.Warn("tide stopped", slog.Any("err", err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			a.Scheduler.Stop()
			if tr.Telegram != nil {
				_ = tr.Telegram.Stop(ctx)
			}
			_ = tr.Linked.Stop(ctx)
			return server.Shutdown(ctx)
		},
	})
}
