package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/speca-google/goes-agents-poc/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		level   zapcore.Level
		wantErr bool
	}{
		{"defaults", config.LogConfig{}, zapcore.InfoLevel, false},
		{"json debug", config.LogConfig{Level: "DEBUG", Format: "json"}, zapcore.DebugLevel, false},
		{"console warn", config.LogConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel, false},
		{"bad level", config.LogConfig{Level: "loud"}, zapcore.InfoLevel, true},
		{"bad format", config.LogConfig{Format: "xml"}, zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.level-1))
			}
		})
	}
}
