package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/html"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

const (
	defaultMaxPages  = 10
	defaultPageParam = "page"
	maxPageBytes     = 8 << 20
)

// StaticSource serves a fixed catalog. It backs development setups and tests.
type StaticSource struct {
	SourceName string
	Products   []model.Product
}

var _ core.ProductSource = (*StaticSource)(nil)

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) Fetch(ctx context.Context, limit int) ([]model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := min(limit, len(s.Products))
	out := make([]model.Product, 0, n)
	for _, p := range s.Products[:n] {
		p.Source = s.SourceName
		out = append(out, p)
	}
	return out, nil
}

// pager fetches numbered listing pages until enough products were seen.
type pager struct {
	client    *http.Client
	baseURL   string
	pageParam string
	maxPages  int
	userAgent string
}

func (p pager) fetchAll(
	ctx context.Context,
	limit int,
	parse func(body []byte) ([]model.Product, error),
) ([]model.Product, error) {
	var out []model.Product
	for page := 1; page <= p.maxPages && len(out) < limit; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		body, err := p.get(ctx, page)
		if err != nil {
			return out, err
		}
		items, err := parse(body)
		if err != nil {
			return out, fmt.Errorf("parse page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p pager) get(ctx context.Context, page int) ([]byte, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set(p.pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// HTMLSource reads schema.org Product microdata from paginated listing pages.
type HTMLSource struct {
	SourceName string
	pager      pager
}

var _ core.ProductSource = (*HTMLSource)(nil)

// NewHTMLSource builds a source for listing pages at baseURL.
func NewHTMLSource(name, baseURL string, opts SourceOptions) *HTMLSource {
	return &HTMLSource{SourceName: name, pager: opts.pager(baseURL)}
}

func (s *HTMLSource) Name() string { return s.SourceName }

func (s *HTMLSource) Fetch(ctx context.Context, limit int) ([]model.Product, error) {
	return s.pager.fetchAll(ctx, limit, func(body []byte) ([]model.Product, error) {
		doc, err := html.Parse(strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		items := microdataProducts(doc)
		for i := range items {
			items[i].Source = s.SourceName
		}
		return items, nil
	})
}

func microdataProducts(root *html.Node) []model.Product {
	var out []model.Product
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isProductScope(n) {
			p := model.Product{}
			fillProduct(n, &p, true)
			if strings.TrimSpace(p.Name) != "" {
				out = append(out, p)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func isProductScope(n *html.Node) bool {
	_, scoped := attr(n, "itemscope")
	typ, _ := attr(n, "itemtype")
	return scoped && strings.HasSuffix(strings.TrimRight(typ, "/"), "schema.org/Product")
}

// fillProduct collects itemprops below n. Nested scopes other than offers are skipped.
func fillProduct(n *html.Node, p *model.Product, top bool) {
	if !top && n.Type == html.ElementNode {
		if _, scoped := attr(n, "itemscope"); scoped {
			if prop, _ := attr(n, "itemprop"); prop != "offers" {
				return
			}
		}
		switch prop, _ := attr(n, "itemprop"); prop {
		case "name":
			if p.Name == "" {
				p.Name = itemValue(n)
			}
		case "description":
			if p.Description == "" {
				p.Description = itemValue(n)
			}
		case "price":
			if p.Price == 0 {
				p.Price, _ = ParsePrice(itemValue(n))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		fillProduct(c, p, false)
	}
}

func itemValue(n *html.Node) string {
	if v, ok := attr(n, "content"); ok {
		return strings.TrimSpace(v)
	}
	var b strings.Builder
	var text func(*html.Node)
	text = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			text(c)
		}
	}
	text(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// JSONSource extracts products from a paginated JSON API with a JMESPath
// expression. The expression must yield objects with name, price and description.
type JSONSource struct {
	SourceName string
	expr       jmespath.JMESPath
	pager      pager
}

var _ core.ProductSource = (*JSONSource)(nil)

// NewJSONSource compiles expr and builds the source.
func NewJSONSource(name, baseURL, expr string, opts SourceOptions) (*JSONSource, error) {
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile products expression for %s: %w", name, err)
	}
	return &JSONSource{SourceName: name, expr: compiled, pager: opts.pager(baseURL)}, nil
}

func (s *JSONSource) Name() string { return s.SourceName }

func (s *JSONSource) Fetch(ctx context.Context, limit int) ([]model.Product, error) {
	return s.pager.fetchAll(ctx, limit, func(body []byte) ([]model.Product, error) {
		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
		res, err := s.expr.Search(doc)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, nil
		}
		rows, ok := res.([]any)
		if !ok {
			return nil, errors.New("products expression must yield an array")
		}
		out := make([]model.Product, 0, len(rows))
		for _, row := range rows {
			obj, ok := row.(map[string]any)
			if !ok {
				continue
			}
			p := model.Product{
				Name:        stringField(obj["name"]),
				Description: stringField(obj["description"]),
				Source:      s.SourceName,
			}
			switch v := obj["price"].(type) {
			case float64:
				p.Price = v
			case string:
				p.Price, _ = ParsePrice(v)
			}
			if p.Name != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

func stringField(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// ParsePrice reads the first number in a price label such as "Rs. 4,990.00".
func ParsePrice(label string) (float64, error) {
	var b strings.Builder
	seen := false
	for _, r := range label {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seen = true
		case r == '.' && seen:
			b.WriteRune(r)
		case r == ',' && seen:
		case seen:
			return strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
		}
	}
	if !seen {
		return 0, fmt.Errorf("no price in %q", label)
	}
	return strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
}

// SourceOptions tunes the HTTP behaviour shared by HTML and JSON sources.
type SourceOptions struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	PageParam string
	MaxPages  int
}

func (o SourceOptions) pager(baseURL string) pager {
	client := o.Client
	if client == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	p := pager{
		client:    client,
		baseURL:   baseURL,
		pageParam: o.PageParam,
		maxPages:  o.MaxPages,
		userAgent: o.UserAgent,
	}
	if p.pageParam == "" {
		p.pageParam = defaultPageParam
	}
	if p.maxPages <= 0 {
		p.maxPages = defaultMaxPages
	}
	return p
}
