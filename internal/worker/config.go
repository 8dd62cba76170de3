package worker

import (
	"time"

	"github.com/yourusername/backtest-orchestrator/internal/config"
)

// Config sizes a Pool
type Config struct {
	Core         int           // long-lived workers (default: 5)
	Max          int           // ceiling including temporary workers (default: 20)
	Queue        int           // pending task buffer (default: 100)
	KeepAlive    time.Duration // idle lifetime of a temporary worker (default: 60s)
	DrainTimeout time.Duration // shutdown budget used by callers (default: 30s)
}

// ConfigFrom maps the application config section onto a pool Config
func ConfigFrom(c config.WorkerPoolConfig) Config {
	return Config{
		Core:         c.Core,
		Max:          c.Max,
		Queue:        c.Queue,
		KeepAlive:    c.KeepAlive(),
		DrainTimeout: c.DrainTimeout(),
	}.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Core <= 0 {
		c.Core = 5
	}
	if c.Max < c.Core {
		c.Max = max(c.Core, 20)
	}
	if c.Queue <= 0 {
		c.Queue = 100
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}
