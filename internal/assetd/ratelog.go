package assetd

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedLogger drops records that arrive faster than one per interval.
type rateLimitedLogger struct {
	log     *slog.Logger
	limiter *rate.Limiter
}

func newRateLimitedLogger(log *slog.Logger, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{
		log:     log,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (l *rateLimitedLogger) Warn(msg string, args ...any) {
	if l == nil || !l.limiter.Allow() {
		return
	}
	l.log.Warn(msg, args...)
}
