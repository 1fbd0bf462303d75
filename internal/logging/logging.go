// Package logging builds the process logger.
package logging

import (
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// New creates a zap logger from cfg. Output always goes to stderr because
// stdout carries the MCP protocol.
func New(cfg common.LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build(zap.Fields(zap.String("service", "cad-analyzer")))
}
