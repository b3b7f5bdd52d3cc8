package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sweeper deletes expired refresh records.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Run serves srv and, when interval is positive, sweeps expired records
// until ctx is cancelled. Shutdown waits up to shutdownTimeout for
// in-flight requests.
func Run(ctx context.Context, srv *http.Server, sweeper Sweeper, interval, shutdownTimeout time.Duration, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if interval > 0 && sweeper != nil {
		g.Go(func() error {
			RunSweeper(ctx, sweeper, interval, logger)
			return nil
		})
	}

	return g.Wait()
}

// RunSweeper calls SweepExpired every interval until ctx is done. Failures
// are logged and retried on the next tick.
func RunSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("sweep failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				logger.Debug("swept expired refresh records", slog.Int64("deleted", n))
			}
		}
	}
}
