package resilience

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// Breakers is a per-key circuit breaker table. The bulk orchestrator keys it
// by patient identifier so that a chronically failing patient is quarantined
// without affecting anyone else. The table is owned by its creator; nothing
// else mutates breaker state.
type Breakers struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]

	onTrip func(key string)
}

// NewBreakers builds a breaker table. onTrip is invoked once per transition
// into the open state and may be nil.
func NewBreakers(cfg Config, onTrip func(key string)) *Breakers {
	return &Breakers{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		onTrip:   onTrip,
	}
}

// Execute runs fn under the key's breaker. While the breaker is open the
// call is rejected immediately with gobreaker.ErrOpenState.
func (b *Breakers) Execute(key string, fn func() error) error {
	breaker := b.breaker(key)
	_, err := breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsOpen reports whether err is a breaker rejection rather than a failure of
// the wrapped call itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsQuarantined implements ports.FailureIsolator.
func (b *Breakers) IsQuarantined(err error) bool {
	return IsOpen(err)
}

func (b *Breakers) breaker(key string) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, ok := b.breakers[key]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: b.cfg.HalfOpenMaxCalls,
		Timeout:     b.cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "key", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && b.onTrip != nil {
				b.onTrip(name)
			}
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	b.breakers[key] = breaker
	return breaker
}
