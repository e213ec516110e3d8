package stages

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/target/marketpulse/internal/domain/model"
)

// DatasetHeader is the first row of every dataset file.
var DatasetHeader = []string{"Product", "Price", "Description", "Source"}

// EncodeDataset renders products as CSV.
func EncodeDataset(products []model.Product) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(DatasetHeader); err != nil {
		return nil, err
	}
	for _, p := range products {
		row := []string{p.Name, strconv.FormatFloat(p.Price, 'f', 2, 64), p.Description, p.Source}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDataset parses a dataset file. Rows with an unreadable price keep a zero price.
func DecodeDataset(data []byte) ([]model.Product, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(DatasetHeader)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	if !strings.EqualFold(strings.TrimPrefix(header[0], "\ufeff"), DatasetHeader[0]) {
		return nil, fmt.Errorf("unexpected dataset header %q", header)
	}

	var out []model.Product
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		price, _ := ParsePrice(row[1])
		out = append(out, model.Product{
			Name:        row[0],
			Price:       price,
			Description: row[2],
			Source:      row[3],
		})
	}
}
