package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// connectRetry pings a Postgres target with exponential backoff. target is a
// DSN-free description of the server used in log lines.
type connectRetry struct {
	maxRetries int
	baseDelay  time.Duration
	target     string
	logger     *zap.Logger
}

func (r connectRetry) do(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := r.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := r.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	logger := r.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("postgres reachable", zap.String("target", r.target), zap.Int("attempts", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanent(err) {
			logger.Error("postgres rejected connection",
				zap.String("target", r.target),
				zap.String("sqlstate", sqlState(err)),
				zap.Error(err),
			)
			return err
		}
		if attempt > maxRetries {
			return err
		}
		logger.Warn("postgres unavailable, retrying",
			zap.String("target", r.target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// permanent reports whether the server refused the session for a reason
// waiting will not fix: bad credentials or a missing database.
func permanent(err error) bool {
	switch class := sqlState(err); {
	case len(class) < 2:
		return false
	case class[:2] == "28", class[:2] == "3D":
		return true
	}
	return false
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
