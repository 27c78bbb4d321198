package resilience

import "time"

// Config tunes the circuit breakers guarding remote prediction backends.
type Config struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32

	// OnStateChange receives every breaker transition as closed, half-open or open.
	OnStateChange func(operation, state string)
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MinRequests:      5,
		FailureRatio:     0.5,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinRequests == 0 {
		c.MinRequests = def.MinRequests
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = def.FailureRatio
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return c
}

// tripped reports whether the observed window is unhealthy enough to open the breaker.
func (c Config) tripped(requests, failures uint32) bool {
	if requests < c.MinRequests {
		return false
	}
	return float64(failures)/float64(requests) >= c.FailureRatio
}
