package stages_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/stages"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "Rs. 4,990.00", want: 4990},
		{in: "PKR 12,500", want: 12500},
		{in: "19.99", want: 19.99},
		{in: "$5. each", want: 5},
		{in: "free", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := stages.ParsePrice(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestStaticSource_Limit(t *testing.T) {
	src := &stages.StaticSource{SourceName: "Shop", Products: sampleProducts()}

	got, err := src.Fetch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "Shop", p.Source)
	}
}

const microdataPage = `<html><body>
<div itemscope itemtype="https://schema.org/Product">
  <h2 itemprop="name">  Linen   Shirt %d </h2>
  <p itemprop="description">Breathable linen.</p>
  <div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
    <meta itemprop="price" content="2,490.00">
  </div>
</div>
<div itemscope itemtype="https://schema.org/Product">
  <span itemprop="name">Cargo Pant %d</span>
  <span itemprop="price">Rs. 4,990</span>
</div>
</body></html>`

func TestHTMLSource_PaginatesMicrodata(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		if page == "3" {
			fmt.Fprint(w, "<html><body>no more</body></html>")
			return
		}
		fmt.Fprintf(w, microdataPage, len(pages), len(pages))
	}))
	defer srv.Close()

	src := stages.NewHTMLSource("Breakout", srv.URL+"/collections/men", stages.SourceOptions{Client: srv.Client()})
	got, err := src.Fetch(context.Background(), 10)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, pages)
	mu.Unlock()
	require.Len(t, got, 4)
	assert.Equal(t, model.Product{
		Name: "Linen Shirt 1", Price: 2490, Description: "Breathable linen.", Source: "Breakout",
	}, got[0])
	assert.Equal(t, "Cargo Pant 1", got[1].Name)
	assert.InDelta(t, 4990, got[1].Price, 0.001)
}

func TestHTMLSource_StopsAtLimit(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		fmt.Fprintf(w, microdataPage, calls, calls)
	}))
	defer srv.Close()

	src := stages.NewHTMLSource("Breakout", srv.URL, stages.SourceOptions{Client: srv.Client()})
	got, err := src.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestHTMLSource_UpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	src := stages.NewHTMLSource("Breakout", srv.URL, stages.SourceOptions{Client: srv.Client()})
	_, err := src.Fetch(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestJSONSource_Expression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("p") != "1" {
			fmt.Fprint(w, `{"products": []}`)
			return
		}
		fmt.Fprint(w, `{"products": [
			{"title": "Tapestry Tee", "body_html": "Oversized", "variants": [{"price": "6900.00"}]},
			{"title": "Ajrak Scarf", "body_html": "Silk", "variants": [{"price": 4500}]},
			{"title": "", "variants": []}
		]}`)
	}))
	defer srv.Close()

	src, err := stages.NewJSONSource("Rastah", srv.URL,
		"products[].{name: title, price: variants[0].price, description: body_html}",
		stages.SourceOptions{Client: srv.Client(), PageParam: "p"})
	require.NoError(t, err)

	got, err := src.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Product{Name: "Tapestry Tee", Price: 6900, Description: "Oversized", Source: "Rastah"}, got[0])
	assert.InDelta(t, 4500, got[1].Price, 0.001)
}

func TestNewJSONSource_BadExpression(t *testing.T) {
	_, err := stages.NewJSONSource("x", "http://example.invalid", "products[", stages.SourceOptions{})
	assert.Error(t, err)
}

func TestParseSources(t *testing.T) {
	raw := []byte(`
[[source]]
name = "Breakout"
type = "html"
url = "https://breakout.example/collections/men"
max_pages = 3

[[source]]
name = "Rastah"
type = "json"
url = "https://rastah.example/products.json"
products = "products[].{name: title, price: variants[0].price, description: body_html}"

[[source]]
name = "Seed"

[[source.product]]
name = "Sample"
price = 10.5
description = "seeded"
`)
	srcs, err := stages.ParseSources(raw, stages.SourceOptions{})
	require.NoError(t, err)
	require.Len(t, srcs, 3)
	assert.Equal(t, "Breakout", srcs[0].Name())
	assert.IsType(t, &stages.HTMLSource{}, srcs[0])
	assert.IsType(t, &stages.JSONSource{}, srcs[1])

	seed, ok := srcs[2].(*stages.StaticSource)
	require.True(t, ok)
	require.Len(t, seed.Products, 1)
	assert.Equal(t, "Sample", seed.Products[0].Name)
	assert.InDelta(t, 10.5, seed.Products[0].Price, 0.001)
}

func TestParseSources_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":        ``,
		"missing name": "[[source]]\ntype = \"html\"\nurl = \"http://x\"\n",
		"duplicate":    "[[source]]\nname = \"a\"\n[[source.product]]\nname = \"p\"\n[[source]]\nname = \"a\"\n[[source.product]]\nname = \"p\"\n",
		"unknown type": "[[source]]\nname = \"a\"\ntype = \"ftp\"\n",
		"html no url":  "[[source]]\nname = \"a\"\ntype = \"html\"\n",
		"static empty": "[[source]]\nname = \"a\"\ntype = \"static\"\n",
		"bad toml":     "[[source]\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := stages.ParseSources([]byte(raw), stages.SourceOptions{})
			assert.Error(t, err)
		})
	}
}

func TestLoadSources_DefaultsToDemo(t *testing.T) {
	srcs, err := stages.LoadSources("", stages.SourceOptions{})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "Breakout", srcs[0].Name())
	assert.Equal(t, "Rastah", srcs[1].Name())
}
