package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		cfg   common.LogConfig
		level zap.AtomicLevel
	}{
		{common.LogConfig{Level: "debug", Format: "console"}, zap.NewAtomicLevelAt(zap.DebugLevel)},
		{common.LogConfig{Level: "warn"}, zap.NewAtomicLevelAt(zap.WarnLevel)},
		{common.LogConfig{Level: "loud"}, zap.NewAtomicLevelAt(zap.InfoLevel)},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level.Level()))
			if tt.level.Level() > zap.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.level.Level()-1))
			}
		})
	}
}

func TestNew_Development(t *testing.T) {
	logger, err := New(common.LogConfig{Level: "info", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
