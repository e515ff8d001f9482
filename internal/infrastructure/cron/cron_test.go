package cron

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery_RunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewScheduler(ctx)
	require.NoError(t, err)
	defer s.Shutdown()

	var runs atomic.Int32
	require.NoError(t, Every(ctx, s, "tick", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestLogger_WritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger{l: &zl}.Info("job scheduled", "name", "reaper")
	assert.Contains(t, buf.String(), `"name":"reaper"`)
	assert.Contains(t, buf.String(), `"message":"job scheduled"`)
}
