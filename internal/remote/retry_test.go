package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	assert.False(t, p.ShouldRetry(nil, 0))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 0))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 2))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3), "attempts are bounded")
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
}
