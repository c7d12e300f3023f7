package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kompox/patchbay/adapters/httpapi"
	"github.com/kompox/patchbay/internal/logging"
)

func newCmdServe() *cobra.Command {
	var (
		listen    string
		logOutput string
	)
	c := &cobra.Command{
		Use:                "serve",
		Short:              "Serve the command API and reap idle sessions",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Server.Listen
			}
			lc := &logging.LogConfig{
				Format:        cfg.Logging.Format,
				Level:         cfg.Logging.Level,
				Output:        cfg.Logging.Output,
				Dir:           cfg.Logging.Dir,
				RetentionDays: cfg.Logging.RetentionDays,
			}
			if logOutput != "" {
				lc.Output = logOutput
			}
			lf, err := logging.NewLogFile(lc)
			if err != nil {
				return err
			}
			defer lf.Close()
			level, err := logging.ParseLevel(lc.Level)
			if err != nil {
				return err
			}
			logger, err := logging.NewWithWriter(lc.Format, level, lf.Writer())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)
			if lf.Path != "" {
				if n, cerr := logging.CleanupOldLogFiles(lc.Dir, lc.RetentionDays); cerr != nil {
					logger.Warn(ctx, "log cleanup failed", "err", cerr)
				} else if n > 0 {
					logger.Info(ctx, "removed old log files", "count", n)
				}
			}

			ctx, cleanup := withCmdRunLogger(ctx, "serve", listen)
			defer func() { cleanup(err) }()

			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			api := httpapi.New(httpapi.Options{
				Commands:     s.Commands,
				Patches:      s.Patches,
				Validator:    s.Validator,
				Logger:       logger,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			})
			srv := &http.Server{
				Addr:              listen,
				Handler:           api,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info(gctx, "listening", "addr", listen)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return s.Sessions.RunReaper(gctx, cfg.Session.ReapInterval)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
				defer cancel()
				logger.Info(shutdownCtx, "shutting down")
				serr := srv.Shutdown(shutdownCtx)
				return errors.Join(serr, s.Sessions.StopAll(shutdownCtx))
			})
			return g.Wait()
		},
	}
	c.Flags().StringVar(&listen, "listen", "", "Listen address (default from config server.listen)")
	c.Flags().StringVar(&logOutput, "log-output", "", "Log output: path, '-' for stderr, 'none' (default from config logging.output)")
	return c
}
