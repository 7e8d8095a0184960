package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/engagesite/internal/cache"
	"github.com/livetemplate/engagesite/internal/cms"
	"github.com/livetemplate/engagesite/internal/config"
	"github.com/livetemplate/engagesite/internal/content"
	"github.com/livetemplate/engagesite/internal/server"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host       string
	port       int
	contentDir string
	watch      bool
}

func newServeCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the site server",
		Example: `  engagesite serve
  engagesite serve --port 9000 --content ./content --watch
  ENGAGESITE_CMS_URL=https://cms.example.com engagesite serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log, err := newLogger(debug || cfg.Server.Debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().StringVar(&opts.contentDir, "content", "", "Directory of content YAML overriding the embedded data")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload content when files change")
	return cmd
}

// applyServeFlags lets explicitly set flags override the config file.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("content") {
		cfg.Content.Dir = opts.contentDir
	}
	if flags.Changed("watch") {
		cfg.Content.Watch = opts.watch
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := content.NewStore(cfg.Content.Dir, log.Named("content"))
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}

	var responses cache.Cache
	if cfg.CMS.IsCacheEnabled() {
		responses, err = cache.Open(cfg.CMS.GetCacheStore(), cfg.CMS.GetCachePath(), log.Named("cache"))
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer responses.Close()
	}

	client, err := cms.NewFromConfig(cfg.CMS, responses, log.Named("cms"))
	if err != nil {
		return fmt.Errorf("failed to create cms client: %w", err)
	}
	defer client.Close()

	if cfg.Content.Watch && cfg.Content.Dir != "" {
		w, err := store.Watch()
		if err != nil {
			return fmt.Errorf("failed to watch content: %w", err)
		}
		defer w.Stop()
	}

	srv := server.New(cfg, store, client, log)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	log.Info("server started",
		zap.String("addr", "http://"+cfg.Server.Addr()),
		zap.String("cms", client.BaseURL()),
		zap.String("content", cfg.Content.Dir),
		zap.Bool("watch", cfg.Content.Watch))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked stepper connections are not tracked by Shutdown.
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
