package stages_test

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/adapters/llm"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type progressLog struct {
	mu     sync.Mutex
	labels []model.JobStatus
	notes  []model.Message
}

func (p *progressLog) Advance(_ context.Context, label model.JobStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = append(p.labels, label)
}

func (p *progressLog) Note(_ context.Context, source, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, model.Message{Source: source, Text: text})
}

func (p *progressLog) noteTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.notes))
	for _, n := range p.notes {
		out = append(out, n.Text)
	}
	return out
}

// scriptedModel replies with a fixed text and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]core.ChatMessage
}

func (m *scriptedModel) Complete(_ context.Context, msgs []core.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, msgs)
	return m.reply, m.err
}

func (m *scriptedModel) Stream(ctx context.Context, msgs []core.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := m.Complete(ctx, msgs)
		if err != nil {
			yield("", err)
			return
		}
		for _, f := range llm.Fragments(text) {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (m *scriptedModel) lastUserPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	msgs := m.prompts[len(m.prompts)-1]
	return msgs[len(msgs)-1].Content
}

func newWorkspace(t *testing.T) *stages.Workspace {
	t.Helper()
	store, err := data.NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)
	return stages.NewWorkspace(store)
}

func seedDataset(t *testing.T, ws *stages.Workspace, owner string, products []model.Product) {
	t.Helper()
	body, err := stages.EncodeDataset(products)
	require.NoError(t, err)
	require.NoError(t, ws.Publish(context.Background(), owner, stages.SlotDataset,
		&model.Artifact{ContentType: "text/csv", FileName: "products.csv", Data: body}))
}

func seedAnalysis(t *testing.T, ws *stages.Workspace, owner, text string) {
	t.Helper()
	require.NoError(t, ws.Publish(context.Background(), owner, stages.SlotAnalysis,
		&model.Artifact{ContentType: "text/markdown", FileName: "analysis.md", Data: []byte(text)}))
}

func sampleProducts() []model.Product {
	return []model.Product{
		{Name: "Denim Jacket", Price: 7990, Description: "Rigid denim", Source: "Breakout"},
		{Name: "Oxford Shirt", Price: 3490, Description: "Button-down", Source: "Breakout"},
		{Name: "Woven Bomber", Price: 24500, Description: "Khaddar", Source: "Rastah"},
	}
}

func request(kind model.JobKind, input string) model.StageRequest {
	return model.StageRequest{JobID: "job-1", Owner: "alice", Kind: kind, Input: []byte(input)}
}
