package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
)

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name string
		want input.Key
	}{
		{"", input.Enter},
		{"Enter", input.Enter},
		{"return", input.Enter},
		{"Tab", input.Tab},
		{"Esc", input.Escape},
		{"ArrowDown", input.ArrowDown},
		{"a", input.Key('a')},
	}
	for _, tt := range tests {
		got, err := keyFor(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := keyFor("Hyper")
	assert.Error(t, err)
}

func TestMapErr(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, mapErr(ctx, nil))
	assert.ErrorIs(t, mapErr(ctx, fmt.Errorf("wait: %w", context.DeadlineExceeded)), executor.ErrTimeout)
	assert.ErrorIs(t, mapErr(ctx, errors.New("{-32001} Session with given id not found")), executor.ErrUpstreamUnavailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, mapErr(cancelled, errors.New("anything")), context.Canceled)

	plain := errors.New("plain")
	assert.Equal(t, plain, mapErr(ctx, plain))
}

func TestManagerStatusBeforeStart(t *testing.T) {
	m := NewManager(&config.BrowserConfig{Driver: "rod", ControlURL: "ws://127.0.0.1:9222"})

	status := m.Status()
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, true, status["remote"])
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.Stop(), "stopping an idle manager is a no-op")
}
