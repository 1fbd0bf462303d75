package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// Supported converter kinds.
const (
	KindODA      = "oda"
	KindLibreDWG = "libredwg"
)

// Converter turns a DWG file into a DXF file. The returned cleanup removes
// everything the conversion created and is never nil, even on error.
type Converter interface {
	Convert(ctx context.Context, dwgPath string) (dxfPath string, cleanup func(), err error)
}

// DWGConverter runs an external converter process.
type DWGConverter struct {
	cfg    common.ConverterConfig
	runner Runner
	logger *zap.Logger
}

// Option configures a DWGConverter.
type Option func(*DWGConverter)

// WithRunner replaces the process runner (tests).
func WithRunner(r Runner) Option {
	return func(c *DWGConverter) { c.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *DWGConverter) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a converter for cfg.Kind.
func New(cfg common.ConverterConfig, opts ...Option) (*DWGConverter, error) {
	switch cfg.Kind {
	case KindODA:
		if cfg.Path == "" {
			cfg.Path = "ODAFileConverter"
		}
		if cfg.OutputVersion == "" {
			cfg.OutputVersion = "ACAD2018"
		}
	case KindLibreDWG:
		if cfg.Path == "" {
			cfg.Path = "dwg2dxf"
		}
	default:
		return nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown converter %q: use oda | libredwg", cfg.Kind), common.ErrInvalidInput)
	}

	c := &DWGConverter{cfg: cfg, runner: execRunner{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Convert writes <stem>.dxf into a fresh temporary directory. The
// configured timeout bounds the external process.
func (c *DWGConverter) Convert(ctx context.Context, dwgPath string) (string, func(), error) {
	noop := func() {}

	abs, err := filepath.Abs(dwgPath)
	if err != nil {
		return "", noop, conversionError("resolve input path", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", noop, conversionError("input not readable", err)
	}

	tmpDir, err := os.MkdirTemp(c.cfg.TempDir, "cad-convert-"+uuid.NewString()[:8]+"-*")
	if err != nil {
		return "", noop, conversionError("create temp dir", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			c.logger.Warn("failed to remove conversion dir", zap.String("dir", tmpDir), zap.Error(err))
		}
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	out := filepath.Join(tmpDir, stem+".dxf")

	start := time.Now()
	var args []string
	switch c.cfg.Kind {
	case KindODA:
		// input folder, output folder, version, type, recurse, audit, filter
		args = []string{filepath.Dir(abs), tmpDir, c.cfg.OutputVersion, "DXF", "0", "1", filepath.Base(abs)}
	case KindLibreDWG:
		args = []string{"-y", "-o", out, abs}
	}

	_, errb, runErr := c.runner.Run(ctx, c.cfg.Path, c.logger, args...)
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", cleanup, conversionError(fmt.Sprintf("%s timed out after %s", c.cfg.Kind, c.cfg.Timeout), runErr)
		}
		msg := fmt.Sprintf("%s failed", c.cfg.Kind)
		if s := strings.TrimSpace(string(errb)); s != "" {
			msg += ": " + truncate(s, 512)
		}
		return "", cleanup, conversionError(msg, runErr)
	}

	if st, statErr := os.Stat(out); statErr != nil || st.Size() == 0 {
		if statErr == nil {
			statErr = errors.New("empty output file")
		}
		return "", cleanup, conversionError("conversion produced no output", statErr)
	}

	c.logger.Info("converted DWG to DXF",
		zap.String("input", abs),
		zap.String("output", out),
		zap.Duration("duration", time.Since(start)),
	)
	return out, cleanup, nil
}

func conversionError(msg string, cause error) error {
	return common.NewAppError("CONVERSION_ERROR", msg, errors.Join(common.ErrConversion, cause))
}
