package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/classify"
	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/convert"
	"github.com/ironsheep/cad-analyzer-mcp/internal/dxf"
	"github.com/ironsheep/cad-analyzer-mcp/internal/extract"
	"github.com/ironsheep/cad-analyzer-mcp/internal/history"
	"github.com/ironsheep/cad-analyzer-mcp/internal/metrics"
	"github.com/ironsheep/cad-analyzer-mcp/internal/render"
	"github.com/ironsheep/cad-analyzer-mcp/internal/source"
	"github.com/ironsheep/cad-analyzer-mcp/internal/summarize"
)

// Operation names used for history records and metrics.
const (
	OpParse   = "parse"
	OpExtract = "extract"
	OpExport  = "export"
)

// TimeLayout is the layout of Response.Time.
const TimeLayout = "2006-01-02 15:04:05"

// Request is one drawing analysis request.
type Request struct {
	FilePath    string `json:"file_path"`
	ModelChoice string `json:"model_choice,omitempty"`
	MaxEntities int    `json:"max_entities,omitempty"`
}

// Response is the assembled response document.
type Response struct {
	Filename     string           `json:"filename"`
	Time         string           `json:"time"`
	PreviewImage string           `json:"preview_image"`
	Metadata     extract.Metadata `json:"metadata"`
	Analysis     string           `json:"analysis"`
	RawData      *extract.Result  `json:"raw_data"`
}

// Source resolves request paths to local files.
type Source interface {
	Stat(p string) error
	Fetch(ctx context.Context, p string) (local string, cleanup func(), err error)
}

// Orchestrator runs requests. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	engine     *extract.Engine
	renderer   *render.Renderer
	converter  convert.Converter
	summarizer summarize.Summarizer
	source     Source
	history    history.Store
	logger     *zap.Logger
	now        func() time.Time

	maxEntities      int
	summarizeTimeout time.Duration
}

// Option overrides a collaborator built from the configuration.
type Option func(*Orchestrator)

func WithConverter(c convert.Converter) Option {
	return func(o *Orchestrator) { o.converter = c }
}

func WithSummarizer(s summarize.Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

func WithSource(s Source) Option {
	return func(o *Orchestrator) { o.source = s }
}

func WithHistory(h history.Store) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now for the response timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an Orchestrator from cfg. Collaborators not supplied through
// options are constructed from cfg; history defaults to disabled.
func New(cfg *common.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:           zap.NewNop(),
		now:              time.Now,
		maxEntities:      cfg.Extraction.MaxEntities,
		summarizeTimeout: cfg.Summarizer.Timeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxEntities <= 0 {
		o.maxEntities = dxf.DefaultMaxEntities
	}

	classifier := classify.New(cfg.Extraction.SecurityKeywords, cfg.Extraction.WiringKeywords)
	o.engine = extract.NewEngine(classifier, extract.WithLogger(o.logger.Named("extract")))

	renderer, err := render.New(render.Options{
		Size:        cfg.Render.Size,
		FontPath:    cfg.Render.FontPath,
		DeviceColor: cfg.Render.DeviceColor,
		WiringColor: cfg.Render.WiringColor,
	})
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "renderer", err)
	}
	o.renderer = renderer

	if o.converter == nil {
		c, err := convert.New(cfg.Converter, convert.WithLogger(o.logger.Named("convert")))
		if err != nil {
			return nil, err
		}
		o.converter = c
	}
	if o.summarizer == nil {
		o.summarizer = summarize.New(cfg.Summarizer, o.logger.Named("summarize"))
	}
	if o.source == nil {
		maxBytes := int64(cfg.Extraction.MaxFileSizeMB) << 20
		r, err := source.NewResolver(cfg.Storage, cfg.Converter.TempDir, maxBytes, o.logger.Named("source"))
		if err != nil {
			return nil, err
		}
		o.source = r
	}
	if o.history == nil {
		o.history = history.Nop{}
	}
	return o, nil
}

// Process runs the full pipeline for req.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := o.process(ctx, req)
	var res *extract.Result
	if resp != nil {
		res = resp.RawData
	}
	o.finish(ctx, OpParse, req.FilePath, start, res, err)
	return resp, err
}

func (o *Orchestrator) process(ctx context.Context, req Request) (*Response, error) {
	res, err := o.extract(ctx, req.FilePath, req.MaxEntities)
	if err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("file", req.FilePath))

	t := metrics.NewTimer()
	png, err := o.renderer.Render(res)
	metrics.ObserveStage(metrics.StageRender, t.Duration())
	if err != nil {
		log.Error("render failed", zap.String("stage", metrics.StageRender), zap.Error(err))
		return nil, common.NewAppError("RENDER_ERROR", "Failed to render preview: "+err.Error(), err)
	}

	payload, err := MarshalResult(res)
	if err != nil {
		return nil, common.NewAppError("INTERNAL_ERROR", "serialize result", err)
	}

	analysis := o.summarize(ctx, log, payload, req.ModelChoice)

	return &Response{
		Filename:     source.Base(req.FilePath),
		Time:         o.now().Format(TimeLayout),
		PreviewImage: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Metadata:     res.Metadata,
		Analysis:     analysis,
		RawData:      res,
	}, nil
}

// summarize never fails the request: errors come back as analysis text.
func (o *Orchestrator) summarize(ctx context.Context, log *zap.Logger, payload, model string) string {
	if o.summarizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.summarizeTimeout)
		defer cancel()
	}
	t := metrics.NewTimer()
	text, err := o.summarizer.Summarize(ctx, payload, model)
	metrics.ObserveStage(metrics.StageSummarize, t.Duration())
	metrics.RecordSummarization(err)
	if err != nil {
		log.Warn("summarization failed", zap.String("stage", metrics.StageSummarize), zap.Error(err))
	}
	return text
}

// Extract resolves, converts and reads filePath and returns the extraction
// result. maxEntities <= 0 uses the configured cap.
func (o *Orchestrator) Extract(ctx context.Context, filePath string, maxEntities int) (*extract.Result, error) {
	start := time.Now()
	res, err := o.extract(ctx, filePath, maxEntities)
	o.finish(ctx, OpExtract, filePath, start, res, err)
	return res, err
}

// ExtractForExport is Extract recorded under the export operation.
func (o *Orchestrator) ExtractForExport(ctx context.Context, filePath string, maxEntities int) (*extract.Result, error) {
	start := time.Now()
	res, err := o.extract(ctx, filePath, maxEntities)
	o.finish(ctx, OpExport, filePath, start, res, err)
	return res, err
}

func (o *Orchestrator) extract(ctx context.Context, filePath string, maxEntities int) (*extract.Result, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, common.NewAppError("INVALID_INPUT", "file_path is required", common.ErrInvalidInput)
	}
	if maxEntities <= 0 {
		maxEntities = o.maxEntities
	}
	log := o.logger.With(zap.String("file", filePath))

	if err := o.source.Stat(filePath); err != nil {
		log.Warn("input rejected", zap.String("stage", metrics.StageFetch), zap.Error(err))
		return nil, err
	}

	ext := strings.ToLower(path.Ext(source.Base(filePath)))
	if ext != ".dxf" && ext != ".dwg" {
		err := common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("Unsupported file type: %s. Only DXF and DWG files are supported", ext),
			common.ErrUnsupportedFormat)
		log.Warn("input rejected", zap.String("extension", ext), zap.Error(err))
		return nil, err
	}

	t := metrics.NewTimer()
	local, release, err := o.source.Fetch(ctx, filePath)
	defer release()
	metrics.ObserveStage(metrics.StageFetch, t.Duration())
	if err != nil {
		log.Error("fetch failed", zap.String("stage", metrics.StageFetch), zap.Error(err))
		return nil, err
	}

	dxfPath := local
	if ext == ".dwg" {
		t := metrics.NewTimer()
		converted, cleanup, err := o.converter.Convert(ctx, local)
		defer cleanup()
		metrics.ObserveStage(metrics.StageConvert, t.Duration())
		metrics.RecordConversion(err)
		if err != nil {
			log.Error("conversion failed", zap.String("stage", metrics.StageConvert), zap.Error(err))
			return nil, common.NewAppError("CONVERSION_ERROR", "Failed to convert DWG to DXF: "+common.Detail(err), err)
		}
		dxfPath = converted
	}

	t = metrics.NewTimer()
	doc, err := dxf.Open(dxfPath)
	metrics.ObserveStage(metrics.StageRead, t.Duration())
	if err != nil {
		log.Error("read failed", zap.String("stage", metrics.StageRead), zap.Error(err))
		return nil, err
	}

	t = metrics.NewTimer()
	res := o.engine.ExtractDocument(doc, maxEntities)
	metrics.ObserveStage(metrics.StageExtract, t.Duration())
	m := res.Metadata
	metrics.RecordExtraction(m.ScannedEntities, m.SkippedEntities, len(res.SecurityDevices), m.Truncated())

	log.Info("extracted drawing",
		zap.String("stage", metrics.StageExtract),
		zap.Int("total_entities", m.TotalEntities),
		zap.Int("scanned_entities", m.ScannedEntities),
		zap.Int("skipped_entities", m.SkippedEntities),
		zap.Int("devices", len(res.SecurityDevices)),
		zap.Int("annotations", len(res.TextAnnotations)),
		zap.Int("wiring", len(res.Wiring)),
	)
	return res, nil
}

// finish records metrics and a history entry for a completed request.
func (o *Orchestrator) finish(ctx context.Context, op, filePath string, start time.Time, res *extract.Result, err error) {
	elapsed := time.Since(start)
	rec := &history.Record{
		File:       filePath,
		Operation:  op,
		Status:     history.StatusOK,
		DurationMS: elapsed.Milliseconds(),
	}
	outcome := "success"
	if err != nil {
		outcome = common.CategoryOf(err)
		rec.Status = history.StatusError
		rec.Category = outcome
		rec.Error = common.Detail(err)
	}
	if res != nil {
		rec.Devices = len(res.SecurityDevices)
		rec.Annotations = len(res.TextAnnotations)
		rec.Wiring = len(res.Wiring)
		rec.TotalEntities = res.Metadata.TotalEntities
	}
	metrics.RecordRequest(op, outcome, elapsed)

	// history must not fail or outlive the request's cancellation
	if herr := o.history.Record(context.WithoutCancel(ctx), rec); herr != nil {
		o.logger.Warn("failed to record history", zap.String("file", filePath), zap.Error(herr))
	}
}

// History returns the newest history records.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]history.Record, error) {
	return o.history.List(ctx, limit)
}

// PruneHistory deletes history older than retentionDays.
func (o *Orchestrator) PruneHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return o.history.Prune(ctx, history.Cutoff(o.now(), retentionDays))
}

// MarshalResult serializes res as indented JSON without HTML escaping, so
// CJK names and symbols stay readable for the summarizer.
func MarshalResult(res *extract.Result) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
