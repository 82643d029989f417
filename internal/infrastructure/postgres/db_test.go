package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) PingContext(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady_RetriesUntilUp(t *testing.T) {
	p := &flakyPinger{failures: 2}
	assert.NoError(t, waitReady(context.Background(), p, 10*time.Second))
	assert.Equal(t, 3, p.calls)
}

func TestWaitReady_GivesUp(t *testing.T) {
	p := &flakyPinger{failures: 1 << 30}
	err := waitReady(context.Background(), p, 500*time.Millisecond)
	assert.ErrorContains(t, err, "connection refused")
	assert.Greater(t, p.calls, 1)
}

func TestWaitReady_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &flakyPinger{failures: 1 << 30}
	assert.Error(t, waitReady(ctx, p, 10*time.Second))
}
