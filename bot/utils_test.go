package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRobustExecuteStopsOnSuccess(t *testing.T) {
	calls := 0
	ok := RobustExecute(context.Background(), 3, time.Millisecond, func() bool {
		calls++
		return calls == 2
	})

	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestRobustExecuteGivesUp(t *testing.T) {
	calls := 0
	ok := RobustExecute(context.Background(), 3, time.Millisecond, func() bool {
		calls++
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestRobustExecuteHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	ok := RobustExecute(ctx, 5, time.Hour, func() bool {
		calls++
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}
