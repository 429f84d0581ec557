package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/autobuild/internal/config"
	"github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/server"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), nil)
}

// serve builds, watches and serves until ctx ends. ready, when not nil,
// receives the server once it is listening.
func serve(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, ready func(*server.Server)) error {
	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Root:           a.builder.OutDir(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return errors.NewEnhancedError(
			fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
			err,
			errors.ServerStartError(err, cfg.Server.Port),
		)
	}
	a.builder.SetURL(srv.URL())

	a.initialBuild(ctx)
	if ctx.Err() != nil {
		_ = srv.Shutdown(context.Background())
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	d, err := a.startWatching(gctx, g, srv)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}
	srv.SetStatsProvider(func() interface{} {
		return map[string]interface{}{
			"dispatch": d.Stats(),
			"build":    a.builder.Metrics().Snapshot(),
		}
	})

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if cfg.Server.OpenBrowser {
		g.Go(func() error {
			if err := server.OpenBrowser(gctx, srv.URL(), cfg.Server.Delay); err != nil {
				a.logger.Warn(gctx, err, "cannot open browser", "url", srv.URL())
			}
			return nil
		})
	}

	if cfg.Build.NoInitial {
		a.console.Message("Serving on %s", srv.URL())
	}
	if ready != nil {
		ready(srv)
	}

	return g.Wait()
}
