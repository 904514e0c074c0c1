package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/erpconsole/internal/audit"
	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/config"
	"github.com/matthewbaird/erpconsole/internal/console"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
	"github.com/matthewbaird/erpconsole/internal/i18n"
	"github.com/matthewbaird/erpconsole/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the console HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides CONSOLE_PORT)")
	cmd.Flags().String("backend-url", "", "ERP base URL (overrides CONSOLE_BACKEND_URL)")
	v.BindPFlag("port", cmd.Flags().Lookup("port"))
	v.BindPFlag("backend_url", cmd.Flags().Lookup("backend-url"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cfg.DoctypesFile)
	if err != nil {
		return err
	}
	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}
	if !bundle.Supports(cfg.DefaultLanguage) {
		return fmt.Errorf("default_language %q has no catalog", cfg.DefaultLanguage)
	}

	store, err := audit.Open(ctx, cfg.AuditDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := eventbus.New(0, logger)
	bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	bus.Subscribe("audit", audit.NewConsumer(store))
	bus.Start(ctx)
	defer bus.Stop()

	sessions := auth.NewManager(cfg.Session.MaxAge, cfg.Session.IdleTimeout)
	c, err := console.New(console.Options{
		Registry:        reg,
		Sessions:        sessions,
		Bundle:          bundle,
		Bus:             bus,
		Audit:           store,
		Logger:          logger,
		BackendURL:      cfg.BackendURL,
		BackendTimeout:  cfg.BackendTimeout,
		DefaultLanguage: cfg.DefaultLanguage,
		MinPerPage:      cfg.List.MinPerPage,
		SecureCookies:   cfg.SecureCookies,
	})
	if err != nil {
		return err
	}

	logger.Info("console configured",
		"backend", cfg.BackendURL,
		"doctypes", len(reg.Slugs()),
		"languages", len(bundle.Languages()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(ctx, cfg.Session.SweepInterval)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx, server.Config{
			Port:    cfg.Port,
			Handler: c.Routes(),
			Logger:  logger,
		})
	})
	return g.Wait()
}
