package nodeservice

import (
	"time"

	"github.com/google/uuid"
)

func newUUID() string {
	return uuid.NewString()
}

func nowReal() time.Time {
	return time.Now().UTC()
}

// WithClock overrides the service's time source, for deterministic
// tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithIDGenerator overrides the service's uuid source, for
// deterministic tests.
func (s *Service) WithIDGenerator(idgen func() string) *Service {
	s.idgen = idgen
	return s
}
