package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/cad-analyzer-mcp/internal/classify"
	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/history"
	"github.com/ironsheep/cad-analyzer-mcp/internal/source"
)

const scenarioFile = "testdata/scenario.dxf"

type stubSummarizer struct {
	payload string
	model   string
	text    string
	err     error
}

func (s *stubSummarizer) Summarize(_ context.Context, payload, model string) (string, error) {
	s.payload = payload
	s.model = model
	return s.text, s.err
}

// stubConverter copies a fixed DXF into its own temp dir.
type stubConverter struct {
	dir     string
	fixture string
	err     error
	calls   int
	cleaned bool
	lastOut string
}

func (c *stubConverter) Convert(_ context.Context, dwgPath string) (string, func(), error) {
	c.calls++
	dir, err := os.MkdirTemp(c.dir, "stub-convert-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		c.cleaned = true
		_ = os.RemoveAll(dir)
	}
	if c.err != nil {
		return "", cleanup, c.err
	}
	data, err := os.ReadFile(c.fixture)
	if err != nil {
		return "", cleanup, err
	}
	stem := strings.TrimSuffix(filepath.Base(dwgPath), filepath.Ext(dwgPath))
	c.lastOut = filepath.Join(dir, stem+".dxf")
	return c.lastOut, cleanup, os.WriteFile(c.lastOut, data, 0o644)
}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	return &common.Config{
		Extraction: common.ExtractionConfig{
			MaxEntities:      3000,
			MaxFileSizeMB:    10,
			SecurityKeywords: classify.DefaultSecurityKeywords,
			WiringKeywords:   classify.DefaultWiringKeywords,
		},
		Converter:  common.ConverterConfig{Kind: "oda", TempDir: t.TempDir()},
		Summarizer: common.SummarizerConfig{Timeout: time.Second},
		Render:     common.RenderConfig{Size: 300},
	}
}

type fixture struct {
	orch       *Orchestrator
	summarizer *stubSummarizer
	converter  *stubConverter
	tempDir    string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cfg := testConfig(t)
	f := &fixture{
		summarizer: &stubSummarizer{text: "两台门禁设备"},
		converter:  &stubConverter{dir: cfg.Converter.TempDir, fixture: scenarioFile},
		tempDir:    cfg.Converter.TempDir,
	}
	clock := func() time.Time { return time.Date(2026, 5, 4, 9, 30, 15, 0, time.Local) }
	base := []Option{
		WithSummarizer(f.summarizer),
		WithConverter(f.converter),
		WithSource(source.NewResolverWithClient(nil, f.tempDir, 10<<20, nil)),
		WithClock(clock),
	}
	orch, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func copyFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(scenarioFile)
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left in %s", dir)
}

func TestProcess_Scenario(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orch.Process(context.Background(), Request{
		FilePath:    scenarioFile,
		ModelChoice: "qwen-plus",
	})
	require.NoError(t, err)

	assert.Equal(t, "scenario.dxf", resp.Filename)
	assert.Equal(t, "2026-05-04 09:30:15", resp.Time)
	assert.Equal(t, "两台门禁设备", resp.Analysis)
	assert.Equal(t, 3, resp.Metadata.TotalEntities)
	assert.Equal(t, resp.Metadata, resp.RawData.Metadata)

	require.Len(t, resp.RawData.SecurityDevices, 1)
	assert.Equal(t, "门禁读卡器A", resp.RawData.SecurityDevices[0].Name)
	assert.Equal(t, "block_reference", resp.RawData.SecurityDevices[0].Type)
	assert.Equal(t, "INSERT", resp.RawData.SecurityDevices[0].EntityType)
	require.Len(t, resp.RawData.TextAnnotations, 1)
	require.Len(t, resp.RawData.Wiring, 2)
	assert.True(t, resp.RawData.Wiring[0].IsLabeled())
	assert.False(t, resp.RawData.Wiring[1].IsLabeled())

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(resp.PreviewImage, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(resp.PreviewImage, prefix))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "qwen-plus", f.summarizer.model)
	assert.Contains(t, f.summarizer.payload, `"name": "门禁读卡器A"`)
	assert.Contains(t, f.summarizer.payload, "\n  \"metadata\": {")
	assert.Equal(t, 0, f.converter.calls)
}

func TestProcess_SummarizerFailureIsAnalysisText(t *testing.T) {
	f := newFixture(t)
	f.summarizer.text = "Request Failed: connection refused"
	f.summarizer.err = common.NewAppError("SUMMARIZATION_ERROR", f.summarizer.text, common.ErrSummarization)

	resp, err := f.orch.Process(context.Background(), Request{FilePath: scenarioFile})
	require.NoError(t, err)
	assert.Equal(t, "Request Failed: connection refused", resp.Analysis)
	assert.Len(t, resp.RawData.SecurityDevices, 1)
}

func TestExtract_Cap(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Extract(context.Background(), scenarioFile, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metadata.TotalEntities)
	assert.Equal(t, 1, res.Metadata.ScannedEntities)
	assert.True(t, res.Metadata.Truncated())
	assert.Len(t, res.SecurityDevices, 1)
	assert.Empty(t, res.Wiring)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	f := newFixture(t)
	pdf := filepath.Join(t.TempDir(), "plan.PDF")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o644))

	_, err := f.orch.Extract(context.Background(), pdf, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Equal(t, common.CategoryBadRequest, common.CategoryOf(err))
	assert.Equal(t, "Unsupported file type: .pdf. Only DXF and DWG files are supported", common.Detail(err))
	assert.Equal(t, 0, f.converter.calls)
	assertEmptyDir(t, f.tempDir)
}

func TestExtract_MissingFileBeforeExtension(t *testing.T) {
	f := newFixture(t)

	for _, p := range []string{"/nonexistent/plan.dxf", "/nonexistent/plan.pdf"} {
		_, err := f.orch.Extract(context.Background(), p, 0)
		assert.ErrorIs(t, err, common.ErrFileNotFound, p)
		assert.Equal(t, "File not found: "+p, common.Detail(err))
	}
}

func TestExtract_EmptyPath(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Extract(context.Background(), "  ", 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestExtract_DWGConvertsAndCleansUp(t *testing.T) {
	f := newFixture(t)
	dwg := copyFixture(t, "floor1.DWG")

	res, err := f.orch.Extract(context.Background(), dwg, 0)
	require.NoError(t, err)
	assert.Len(t, res.SecurityDevices, 1)
	assert.Equal(t, 1, f.converter.calls)
	assert.True(t, f.converter.cleaned)
	assert.Equal(t, "floor1.dxf", filepath.Base(f.converter.lastOut))
	assertEmptyDir(t, f.tempDir)
}

func TestExtract_ConversionFailure(t *testing.T) {
	f := newFixture(t)
	f.converter.err = common.NewAppError("CONVERSION_ERROR", "oda failed: bad header", common.ErrConversion)
	dwg := copyFixture(t, "floor1.dwg")

	_, err := f.orch.Extract(context.Background(), dwg, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConversion)
	assert.Equal(t, common.CategoryServerError, common.CategoryOf(err))
	assert.Equal(t, "Failed to convert DWG to DXF: oda failed: bad header", common.Detail(err))
	assert.True(t, f.converter.cleaned)
	assertEmptyDir(t, f.tempDir)
}

func TestExtract_ParseFailure(t *testing.T) {
	f := newFixture(t)
	bad := filepath.Join(t.TempDir(), "broken.dxf")
	require.NoError(t, os.WriteFile(bad, []byte("not a drawing"), 0o644))

	_, err := f.orch.Extract(context.Background(), bad, 0)
	assert.ErrorIs(t, err, common.ErrParse)
	assert.Equal(t, common.CategoryServerError, common.CategoryOf(err))
}

func TestProcess_RecordsHistory(t *testing.T) {
	store, err := history.OpenSQLite(filepath.Join(t.TempDir(), "h.db"), nil)
	require.NoError(t, err)
	defer store.Close()
	f := newFixture(t, WithHistory(store))
	ctx := context.Background()

	_, err = f.orch.Process(ctx, Request{FilePath: scenarioFile})
	require.NoError(t, err)
	_, err = f.orch.Process(ctx, Request{FilePath: "/nonexistent/x.dxf"})
	require.Error(t, err)

	recs, err := f.orch.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byFile := map[string]history.Record{}
	for _, r := range recs {
		byFile[r.File] = r
	}
	ok := byFile[scenarioFile]
	assert.Equal(t, history.StatusOK, ok.Status)
	assert.Equal(t, OpParse, ok.Operation)
	assert.Equal(t, 1, ok.Devices)
	assert.Equal(t, 2, ok.Wiring)

	failed := byFile["/nonexistent/x.dxf"]
	assert.Equal(t, history.StatusError, failed.Status)
	assert.Equal(t, common.CategoryNotFound, failed.Category)

	// records are stamped with the wall clock, not the fixture clock
	n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarshalResult_KeepsUnicode(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Extract(context.Background(), scenarioFile, 0)
	require.NoError(t, err)

	out, err := MarshalResult(res)
	require.NoError(t, err)
	assert.Contains(t, out, "门禁读卡器A")
	assert.NotContains(t, out, `\u`)
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestProcess_NonFiniteCoordinateIsSkipped(t *testing.T) {
	f := newFixture(t)
	body := strings.Join([]string{
		"0", "SECTION", "2", "ENTITIES",
		"0", "INSERT", "8", "SEC", "2", "门禁读卡器A", "10", "10", "20", "5", "30", "0",
		"0", "LINE", "8", "WIRING", "10", "NaN", "20", "5", "11", "12", "21", "5",
		"0", "LWPOLYLINE", "8", "WIRING", "90", "2", "10", "0", "20", "0", "10", "Infinity", "20", "1",
		"0", "ENDSEC", "0", "EOF",
	}, "\n") + "\n"
	p := filepath.Join(t.TempDir(), "nan.dxf")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	resp, err := f.orch.Process(context.Background(), Request{FilePath: p})
	require.NoError(t, err)
	assert.Len(t, resp.RawData.SecurityDevices, 1)
	assert.Empty(t, resp.RawData.Wiring)
	assert.Equal(t, 2, resp.Metadata.SkippedEntities)

	_, err = MarshalResult(resp.RawData)
	assert.NoError(t, err)
	assert.NotContains(t, f.summarizer.payload, "NaN")
}
