package health

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type staticChecker struct {
	name string
	up   bool
}

func (s *staticChecker) Name() string                                        { return s.name }
func (s *staticChecker) IsHealthy() bool                                     { return s.up }
func (s *staticChecker) Start(ctx context.Context, interval time.Duration)   {}

func TestServiceHealth_AllUp(t *testing.T) {
	svc := NewServiceHealthChecker(zerolog.Nop(), &staticChecker{"a", true}, &staticChecker{"b", true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Start(ctx, time.Hour) // runs the initial eval, then returns on done ctx
	assert.True(t, svc.IsHealthy())
}

func TestServiceHealth_OneDown(t *testing.T) {
	svc := NewServiceHealthChecker(zerolog.Nop(), &staticChecker{"a", true}, &staticChecker{"b", false})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Start(ctx, time.Hour)
	assert.False(t, svc.IsHealthy())
}
