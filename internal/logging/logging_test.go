package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestNew tests logger construction from level and format names
func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		enabled zapcore.Level
	}{
		{name: "json info", level: "info", format: "json", enabled: zapcore.InfoLevel},
		{name: "default format", level: "warn", format: "", enabled: zapcore.WarnLevel},
		{name: "console debug", level: "DEBUG", format: "console", enabled: zapcore.DebugLevel},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.enabled-1))
		})
	}
}

// TestOrNop tests the nil fallback
func TestOrNop(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, OrNop(nil))
	l, err := New("info", "json")
	require.NoError(t, err)
	assert.Same(t, l, OrNop(l))
}
