package stages_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

func newReporter(t *testing.T, ws *stages.Workspace, m *scriptedModel) *stages.Reporter {
	t.Helper()
	r, err := stages.NewReporter(stages.ReporterOptions{Model: m, Workspace: ws, Clock: data.NewFixedTimeProvider(fixedNow)})
	require.NoError(t, err)
	return r
}

func TestReporter_RequiresAnalysis(t *testing.T) {
	m := &scriptedModel{}
	_, err := newReporter(t, newWorkspace(t), m).Run(context.Background(), request(model.JobKindReporting, `{}`), &progressLog{})
	require.Error(t, err)
	assert.True(t, model.IsPrecondition(err))
	assert.EqualError(t, err, "No analysis found. Please run an analysis first.")
	assert.Empty(t, m.prompts)
}

func TestReporter_RendersReport(t *testing.T) {
	ws := newWorkspace(t)
	seedAnalysis(t, ws, "alice", "Denim is popular.")
	m := &scriptedModel{reply: "**Executive Summary**\n- Denim sells"}
	progress := &progressLog{}

	art, err := newReporter(t, ws, m).Run(context.Background(), request(model.JobKindReporting, `{}`), progress)
	require.NoError(t, err)

	text := string(art.Data)
	assert.Equal(t, "report_20250314_093000.md", art.FileName)
	assert.Contains(t, text, "# Market Report")
	assert.Contains(t, text, "job job-1")
	assert.Contains(t, text, "**Executive Summary**\n- Denim sells")
	assert.Contains(t, m.lastUserPrompt(), "Market Analysis Data:\nDenim is popular.")
	assert.Equal(t, []model.JobStatus{model.JobStatusGeneratingReport}, progress.labels)

	_, found, err := ws.Latest(context.Background(), "alice", stages.SlotReport)
	require.NoError(t, err)
	assert.True(t, found)
}
