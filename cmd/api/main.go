package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"notenest.app/internal/accounts"
	"notenest.app/internal/auth"
	"notenest.app/internal/billing"
	"notenest.app/internal/config"
	"notenest.app/internal/httpapi"
	"notenest.app/internal/migrate"
	"notenest.app/internal/notes"
	"notenest.app/internal/obs"
	"notenest.app/internal/store/pg"
	"notenest.app/internal/store/redisstore"
	"notenest.app/internal/stream"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	var runMigrations bool

	cmd := &cobra.Command{
		Use:           "notenest-api",
		Short:         "NoteNest HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, runMigrations)
		},
	}

	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("config", "config.env", "Optional env file")
	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "Apply schema migrations before serving")
	_ = v.BindPFlag(config.KeyHTTPAddr, cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag(config.KeyConfigFile, cmd.Flags().Lookup("config"))

	return cmd
}

func run(ctx context.Context, cfg config.Config, runMigrations bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	codec, err := auth.NewTokenCodec(cfg.AuthSecret)
	if err != nil {
		return err
	}

	var (
		dir       accounts.Directory
		noteStore notes.Store
		probe     httpapi.ReadyProbe
		closers   []func() error
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	if cfg.UsesPostgres() {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		closers = append(closers, store.Close)
		if runMigrations {
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := migrate.NewManager(store.DB()).Up(mctx)
			cancel()
			if err != nil {
				return err
			}
		}
		dir, noteStore, probe.DB = store, store, store.DB()
	} else {
		obs.Warn("no database configured, using in-memory stores", nil)
		dir, noteStore = accounts.NewInMemory(), notes.NewInMemory()
	}

	var reconcilerOpts []billing.Option
	if cfg.UsesRedis() {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, client.Close)
		probe.Redis = client
		reconcilerOpts = append(reconcilerOpts,
			billing.WithDeliveryLog(redisstore.NewDeliveryLog(client, "notenest", redisstore.DefaultDeliveryTTL)))
	}
	if cfg.WebhookSecret == "" {
		obs.Warn("webhook secret not configured, deliveries will be rejected", nil)
	}

	api := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Accounts:   dir,
		Notes:      notes.NewService(noteStore),
		Codec:      codec,
		Reconciler: billing.NewReconciler(cfg.WebhookSecret, dir, reconcilerOpts...),
		Stream:     stream.New(),
		Ready:      probe,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting notenest-api", map[string]any{
		"version":  version,
		"addr":     srv.Addr,
		"postgres": cfg.UsesPostgres(),
		"redis":    cfg.UsesRedis(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-stop:
	}
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	obs.Info("stopped", nil)
	return nil
}
