package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// run executes work until it returns or the process is interrupted,
// serving metrics alongside it when configured.
func (a *app) run(parent context.Context, work func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	srv := a.metricsServer()
	done := make(chan struct{})

	if srv != nil {
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer close(done)
		return work(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && parent.Err() == nil {
		// Interrupted by a signal.
		return nil
	}
	return err
}
