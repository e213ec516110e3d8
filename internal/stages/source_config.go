package stages

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

// SourcesFile is the TOML layout of COLLECTOR_SOURCES_FILE.
//
//	[[source]]
//	name = "Rastah"
//	type = "json"
//	url = "https://shop.example/products.json"
//	products = "products[].{name: title, price: variants[0].price, description: body_html}"
type SourcesFile struct {
	Sources []SourceSpec `toml:"source"`
}

// SourceSpec configures one product source.
type SourceSpec struct {
	Name      string          `toml:"name"`
	Type      string          `toml:"type"`
	URL       string          `toml:"url"`
	Products  string          `toml:"products"`
	PageParam string          `toml:"page_param"`
	MaxPages  int             `toml:"max_pages"`
	Catalog   []model.Product `toml:"product"`
}

const (
	SourceTypeHTML   = "html"
	SourceTypeJSON   = "json"
	SourceTypeStatic = "static"
)

// LoadSources reads a sources file. An empty path yields the demo catalog.
func LoadSources(path string, opts SourceOptions) ([]core.ProductSource, error) {
	if strings.TrimSpace(path) == "" {
		return DemoSources(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(raw, opts)
}

// ParseSources builds sources from TOML.
func ParseSources(raw []byte, opts SourceOptions) ([]core.ProductSource, error) {
	var file SourcesFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("sources file defines no sources")
	}

	seen := make(map[string]struct{}, len(file.Sources))
	out := make([]core.ProductSource, 0, len(file.Sources))
	for i, spec := range file.Sources {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("source %q defined twice", name)
		}
		seen[name] = struct{}{}

		src, err := buildSource(name, spec, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func buildSource(name string, spec SourceSpec, opts SourceOptions) (core.ProductSource, error) {
	if spec.PageParam != "" {
		opts.PageParam = spec.PageParam
	}
	if spec.MaxPages > 0 {
		opts.MaxPages = spec.MaxPages
	}

	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case SourceTypeHTML:
		if spec.URL == "" {
			return nil, fmt.Errorf("source %q: url is required", name)
		}
		return NewHTMLSource(name, spec.URL, opts), nil
	case SourceTypeJSON:
		if spec.URL == "" || spec.Products == "" {
			return nil, fmt.Errorf("source %q: url and products are required", name)
		}
		return NewJSONSource(name, spec.URL, spec.Products, opts)
	case SourceTypeStatic, "":
		if len(spec.Catalog) == 0 {
			return nil, fmt.Errorf("source %q: static source needs products", name)
		}
		return &StaticSource{SourceName: name, Products: spec.Catalog}, nil
	default:
		return nil, fmt.Errorf("source %q: unknown type %q", name, spec.Type)
	}
}

// DemoSources returns two static catalogs used when no sources file is configured.
func DemoSources() []core.ProductSource {
	return []core.ProductSource{
		&StaticSource{SourceName: "Breakout", Products: []model.Product{
			{Name: "Slim Fit Oxford Shirt", Price: 3490, Description: "Cotton oxford shirt with button-down collar."},
			{Name: "Relaxed Cargo Trousers", Price: 4990, Description: "Twill cargo trousers with six pockets."},
			{Name: "Graphic Crew Tee", Price: 1790, Description: "Heavyweight jersey tee with chest print."},
			{Name: "Denim Trucker Jacket", Price: 7990, Description: "Rigid denim jacket in mid wash."},
			{Name: "Knit Polo", Price: 2990, Description: "Textured knit polo with short sleeves."},
			{Name: "Straight Leg Chinos", Price: 3990, Description: "Stretch cotton chinos, straight cut."},
			{Name: "Quilted Overshirt", Price: 5490, Description: "Lightweight quilted overshirt with snaps."},
			{Name: "Linen Blend Shorts", Price: 2490, Description: "Drawstring shorts in linen blend."},
		}},
		&StaticSource{SourceName: "Rastah", Products: []model.Product{
			{Name: "Heritage Embroidered Hoodie", Price: 14500, Description: "Loopback cotton hoodie with hand embroidery."},
			{Name: "Block Print Kurta Shirt", Price: 11900, Description: "Hand block printed shirt in cotton voile."},
			{Name: "Patchwork Denim", Price: 18900, Description: "Selvedge denim with contrast patch panels."},
			{Name: "Woven Bomber", Price: 24500, Description: "Bomber jacket in handwoven khaddar."},
			{Name: "Tapestry Tee", Price: 6900, Description: "Oversized tee with tapestry motif."},
			{Name: "Ajrak Scarf", Price: 4500, Description: "Traditional ajrak print silk scarf."},
			{Name: "Utility Vest", Price: 13500, Description: "Multi-pocket vest in washed canvas."},
			{Name: "Pleated Wide Trousers", Price: 12900, Description: "Wide-leg trousers with front pleats."},
		}},
	}
}
