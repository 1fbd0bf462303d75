package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordExtraction(t *testing.T) {
	scanned := testutil.ToFloat64(EntitiesScanned)
	skipped := testutil.ToFloat64(EntitiesSkipped)
	devices := testutil.ToFloat64(DevicesExtracted)
	truncated := testutil.ToFloat64(TruncatedScans)

	RecordExtraction(10, 2, 3, true)

	assert.Equal(t, scanned+10, testutil.ToFloat64(EntitiesScanned))
	assert.Equal(t, skipped+2, testutil.ToFloat64(EntitiesSkipped))
	assert.Equal(t, devices+3, testutil.ToFloat64(DevicesExtracted))
	assert.Equal(t, truncated+1, testutil.ToFloat64(TruncatedScans))
}

func TestRecordCollaborators(t *testing.T) {
	okBefore := testutil.ToFloat64(ConversionsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(SummarizationsTotal.WithLabelValues("error"))

	RecordConversion(nil)
	RecordSummarization(errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ConversionsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(SummarizationsTotal.WithLabelValues("error")))
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("parse", "bad_request"))
	RecordRequest("parse", "bad_request", 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("parse", "bad_request")))
}
