package stages

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var documentFuncs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"stamp": func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
}

var analysisTemplate = template.Must(template.New("analysis").Funcs(documentFuncs).Parse(
	`# Market Analysis

_Generated {{ stamp .GeneratedAt }} from {{ .Total }} products._

## Price Overview

| Source | Products | Min | Mean | Max |
|---|---:|---:|---:|---:|
{{- range .Sources }}
| {{ .Source }} | {{ .Count }} | {{ money .Min }} | {{ money .Mean }} | {{ money .Max }} |
{{- end }}

## Analysis

{{ .Commentary }}
`))

var reportTemplate = template.Must(template.New("report").Funcs(documentFuncs).Parse(
	`# Market Report

_Prepared {{ stamp .GeneratedAt }}{{ if .JobID }} · job {{ .JobID }}{{ end }}_

{{ .Body }}
`))

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}
