package ratelimit

import (
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"thesis_generator/logger"
)

// Sweeper is implemented by trackers that hold state in process memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

// StartSweeper registers a periodic Sweep on a new cron scheduler and starts it.
// Callers stop it with the returned scheduler's Stop.
func StartSweeper(s Sweeper, spec string, log *zap.Logger) (*rcron.Cron, error) {
	log = logger.OrNop(log).With(zap.String("component", "rate-sweeper"))
	if spec == "" {
		spec = "@every 1m"
	}

	c := rcron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := s.Sweep(time.Now()); n > 0 {
			log.Debug("swept idle identities", zap.Int("removed", n))
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	log.Info("rate limit sweeper started", zap.String("spec", spec))
	return c, nil
}
