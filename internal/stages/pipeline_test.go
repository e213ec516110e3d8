package stages_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

func newPipeline(t *testing.T, ws *stages.Workspace, m *scriptedModel) *stages.Pipeline {
	t.Helper()
	p, err := stages.NewPipeline(
		newCollector(t, ws, stages.DemoSources()...),
		newAnalyzer(t, ws, m),
		newReporter(t, ws, m),
		ws,
	)
	require.NoError(t, err)
	return p
}

func TestPipeline_RunsAllStages(t *testing.T) {
	ws := newWorkspace(t)
	m := &scriptedModel{reply: "Insight."}
	progress := &progressLog{}

	art, err := newPipeline(t, ws, m).Run(context.Background(), request(model.JobKindPipeline, `{"max_items": 4}`), progress)
	require.NoError(t, err)

	assert.Equal(t, []model.JobStatus{
		model.JobStatusScraping,
		model.JobStatusAnalyzing,
		model.JobStatusGeneratingReport,
	}, progress.labels)
	assert.Contains(t, string(art.Data), "# Market Report")
	assert.Len(t, m.prompts, 2)

	for _, slot := range []stages.Slot{stages.SlotDataset, stages.SlotAnalysis, stages.SlotReport} {
		_, found, err := ws.Latest(context.Background(), "alice", slot)
		require.NoError(t, err)
		assert.True(t, found, slot)
	}
}

func TestPipeline_ReuseExisting(t *testing.T) {
	ws := newWorkspace(t)
	seedDataset(t, ws, "alice", sampleProducts())
	m := &scriptedModel{reply: "Insight."}
	progress := &progressLog{}

	_, err := newPipeline(t, ws, m).Run(context.Background(),
		request(model.JobKindPipeline, `{"max_items": 4, "reuse_existing": true}`), progress)
	require.NoError(t, err)

	assert.Equal(t, "Scraped data already exists. Skipping scraping.", progress.noteTexts()[0])
	assert.NotContains(t, progress.labels, model.JobStatusScraping)

	progress = &progressLog{}
	_, err = newPipeline(t, ws, m).Run(context.Background(),
		request(model.JobKindPipeline, `{"max_items": 4, "reuse_existing": true}`), progress)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Scraped data already exists. Skipping scraping.",
		"Analysis already exists. Skipping analysis.",
		"Report already exists. Skipping generation.",
	}, progress.noteTexts())
	assert.Len(t, m.prompts, 2)
}

func TestPipeline_StopsOnPrecondition(t *testing.T) {
	ws := newWorkspace(t)
	seedDataset(t, ws, "alice", sampleProducts()[:1])

	_, err := newPipeline(t, ws, &scriptedModel{}).Run(context.Background(),
		request(model.JobKindPipeline, `{"max_items": 4, "reuse_existing": true}`), &progressLog{})
	assert.True(t, model.IsPrecondition(err))
}

func TestPipeline_Validate(t *testing.T) {
	p := newPipeline(t, newWorkspace(t), &scriptedModel{})
	assert.NoError(t, p.Validate([]byte(`{"max_items": 10, "reuse_existing": true}`)))
	assert.ErrorIs(t, p.Validate([]byte(`{"max_items": 500}`)), model.ErrSubmissionRejected)
}
