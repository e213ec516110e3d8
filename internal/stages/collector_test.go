package stages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

type failingSource struct {
	name string
	err  error
}

func (f failingSource) Name() string { return f.name }

func (f failingSource) Fetch(context.Context, int) ([]model.Product, error) { return nil, f.err }

type blockingSource struct{ started chan struct{} }

func (b blockingSource) Name() string { return "slow" }

func (b blockingSource) Fetch(ctx context.Context, _ int) ([]model.Product, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func newCollector(t *testing.T, ws *stages.Workspace, sources ...core.ProductSource) *stages.Collector {
	t.Helper()
	c, err := stages.NewCollector(stages.CollectorOptions{
		Sources:   sources,
		Workspace: ws,
		Clock:     data.NewFixedTimeProvider(fixedNow),
	})
	require.NoError(t, err)
	return c
}

func TestNewCollector_RequiresSources(t *testing.T) {
	_, err := stages.NewCollector(stages.CollectorOptions{Workspace: newWorkspace(t)})
	assert.Error(t, err)
}

func TestCollector_Validate(t *testing.T) {
	c := newCollector(t, newWorkspace(t), stages.DemoSources()...)

	assert.NoError(t, c.Validate([]byte(`{"max_items": 5}`)))
	for _, in := range []string{`{"max_items": 1}`, `{"max_items": 201}`, `{}`, `{"max_items": "5"}`, `{"other": 1}`} {
		err := c.Validate([]byte(in))
		assert.ErrorIs(t, err, model.ErrSubmissionRejected, in)
	}
}

func TestCollector_SplitsQuotaAndPublishes(t *testing.T) {
	ws := newWorkspace(t)
	c := newCollector(t, ws, stages.DemoSources()...)
	progress := &progressLog{}

	art, err := c.Run(context.Background(), request(model.JobKindCollection, `{"max_items": 5}`), progress)
	require.NoError(t, err)

	assert.Equal(t, "text/csv", art.ContentType)
	assert.Equal(t, "products_20250314_093000.csv", art.FileName)

	products, err := stages.DecodeDataset(art.Data)
	require.NoError(t, err)
	require.Len(t, products, 5)
	assert.Equal(t, "Breakout", products[0].Source)
	assert.Equal(t, "Rastah", products[4].Source)

	assert.Equal(t, []model.JobStatus{model.JobStatusScraping}, progress.labels)
	assert.Len(t, progress.notes, 2)
	assert.Equal(t, "Breakout", progress.notes[0].Source)
	assert.Contains(t, progress.notes[0].Text, "Collected 3 products")

	latest, found, err := ws.Latest(context.Background(), "alice", stages.SlotDataset)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, art.Data, latest.Data)
}

func TestCollector_NormalizesAndDeduplicates(t *testing.T) {
	src := &stages.StaticSource{SourceName: "Shop", Products: []model.Product{
		{Name: "Denim  Jacket", Price: 10, Description: "  raw\n denim "},
		{Name: "DENIM JACKET", Price: 11},
		{Name: "Ｋｎｉｔ Polo", Price: 12},
		{Name: "   ", Price: 13},
	}}
	c := newCollector(t, newWorkspace(t), src)

	art, err := c.Run(context.Background(), request(model.JobKindCollection, `{"max_items": 10}`), &progressLog{})
	require.NoError(t, err)

	products, err := stages.DecodeDataset(art.Data)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Denim Jacket", products[0].Name)
	assert.Equal(t, "raw denim", products[0].Description)
	assert.Equal(t, "Knit Polo", products[1].Name)
}

func TestCollector_PartialSourceFailure(t *testing.T) {
	good := &stages.StaticSource{SourceName: "Shop", Products: sampleProducts()}
	bad := failingSource{name: "Broken", err: errors.New("connection refused")}
	c := newCollector(t, newWorkspace(t), good, bad)
	progress := &progressLog{}

	art, err := c.Run(context.Background(), request(model.JobKindCollection, `{"max_items": 4}`), progress)
	require.NoError(t, err)

	products, err := stages.DecodeDataset(art.Data)
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Contains(t, progress.noteTexts(), "Failed to collect products: connection refused")
}

func TestCollector_NothingCollectedIsUpstreamFailure(t *testing.T) {
	c := newCollector(t, newWorkspace(t), failingSource{name: "Broken", err: errors.New("timeout")})

	_, err := c.Run(context.Background(), request(model.JobKindCollection, `{"max_items": 4}`), &progressLog{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStageFailure)
	assert.Equal(t, model.FailureUpstream, model.ReasonOf(err))
	assert.Contains(t, err.Error(), "timeout")
}

func TestCollector_StopsOnCancel(t *testing.T) {
	src := blockingSource{started: make(chan struct{})}
	c := newCollector(t, newWorkspace(t), src)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, request(model.JobKindCollection, `{"max_items": 4}`), &progressLog{})
		done <- err
	}()
	<-src.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDatasetRoundTrip(t *testing.T) {
	products := []model.Product{
		{Name: `Shirt, "Classic"`, Price: 1234.5, Description: "multi\nline", Source: "A"},
	}
	body, err := stages.EncodeDataset(products)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Product,Price,Description,Source\n")

	got, err := stages.DecodeDataset(body)
	require.NoError(t, err)
	assert.Equal(t, products, got)

	_, err = stages.DecodeDataset([]byte("Name,Cost,Text,Origin\n"))
	assert.Error(t, err)

	empty, err := stages.DecodeDataset(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
