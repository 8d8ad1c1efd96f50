package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
)

func TestWriteOutcome(t *testing.T) {
	out := &pipeline.Outcome{
		Stage:    2,
		RunID:    "run-1",
		Result:   &model.Stage2Result{Total: 5, Found: 3, NotFound: 2, Partial: true},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, writeOutcome(&buf, out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(2), got["stage"])
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, 1.5, got["duration"])
	assert.Equal(t, true, got["partial"])
	assert.NotContains(t, got, "error")
	assert.Equal(t, float64(3), got["result"].(map[string]any)["found"])
}

func TestWriteOutcome_Failure(t *testing.T) {
	out := &pipeline.Outcome{Stage: 1, RunID: "run-2", Err: errors.New("search down"), Fatal: true}

	var buf bytes.Buffer
	require.NoError(t, writeOutcome(&buf, out))
	assert.Contains(t, buf.String(), `"error": "search down"`)
	assert.Contains(t, buf.String(), `"fatal": true`)
}

func TestFormatCompanies(t *testing.T) {
	companies := []model.Company{
		{Name: "Acme Precision", Stage: model.StageCompleted, Website: "https://acme.example", Email: "sales@acme.example",
			Validation: &model.Validation{Score: 87}},
		{Name: "Beta Tools", Stage: model.StageNamesFound},
	}
	var buf bytes.Buffer
	formatCompanies(&buf, companies)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Acme Precision")
	assert.Contains(t, out, "87")
	assert.Contains(t, out, "names_found")
}
