package resilience

import "time"

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// patient's breaker.
	FailureThreshold uint32
	// CoolDown is how long an open breaker excludes a patient before a
	// half-open probe is allowed.
	CoolDown time.Duration
	// HalfOpenMaxCalls bounds the probes allowed while half-open.
	HalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		CoolDown:         5 * time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.FailureThreshold == 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.CoolDown <= 0 {
		out.CoolDown = def.CoolDown
	}
	if out.HalfOpenMaxCalls == 0 {
		out.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return out
}
