package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/mauv0809/quant-screener/internal/models"
)

// identityColumns are written ahead of the metric columns, in this order.
var identityColumns = []string{"date", "tickerId", "ticker", "slug", "companyName", "exchange", "type", "compositeFigi"}

var requiredColumns = map[string]bool{"date": true, "tickerId": true, "ticker": true, "slug": true}

type parquetColumn struct {
	Name   string
	InName string
}

// ParquetPath names the file for a run: ratings-YYYYMMDD-<runID>.parquet.
func ParquetPath(dir string, runDate time.Time, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("ratings-%s-%s.parquet", runDate.Format("20060102"), runID))
}

// Parquet writes every record of a run as one row of a parquet file. The
// schema is fixed when the file is created: the identity columns followed by
// one column per metric name. Metric values are stored as their exact text.
// Rows reach the file on Close.
type Parquet struct {
	mu      sync.Mutex
	path    string
	file    source.ParquetFile
	pw      *writer.JSONWriter
	columns []parquetColumn
	metrics map[string]string // metric name to in-name
}

// NewParquet creates dir if needed and opens the run's parquet file with a
// column per metric name.
func NewParquet(dir string, runDate time.Time, runID string, metricNames []string) (*Parquet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset dir: %w", err)
	}
	columns := parquetColumns(metricNames)
	schema, err := parquetSchema(columns)
	if err != nil {
		return nil, err
	}

	path := ParquetPath(dir, runDate, runID)
	fh, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("creating parquet file %s: %w", path, err)
	}
	pw, err := writer.NewJSONWriter(schema, fh, 4)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.PageSize = 8 * 1024              // 8k
	pw.CompressionType = parquet.CompressionCodec_GZIP

	p := &Parquet{path: path, file: fh, pw: pw, columns: columns, metrics: make(map[string]string)}
	for _, c := range columns[len(identityColumns):] {
		p.metrics[c.Name] = c.InName
	}
	return p, nil
}

// Path returns the file being written.
func (p *Parquet) Path() string {
	return p.path
}

func (p *Parquet) Emit(_ context.Context, rec models.Record) error {
	b, err := json.Marshal(p.row(rec))
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.TickerID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil {
		return fmt.Errorf("parquet %s is closed", p.path)
	}
	if err := p.pw.Write(string(b)); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.TickerID, err)
	}
	return nil
}

// Close writes the footer and closes the file.
func (p *Parquet) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil {
		return nil
	}
	stopErr := p.pw.WriteStop()
	closeErr := p.file.Close()
	p.pw = nil
	if stopErr != nil {
		return fmt.Errorf("finishing parquet %s: %w", p.path, stopErr)
	}
	return closeErr
}

// row keys the record by column in-name. Null metrics and metrics without a
// column are left out.
func (p *Parquet) row(rec models.Record) map[string]any {
	identity := []string{
		rec.Date.Format(models.DateLayout), rec.TickerID, rec.Ticker, rec.Slug,
		rec.CompanyName, rec.Exchange, rec.EquityType, rec.CompositeFigi,
	}
	out := make(map[string]any, len(p.columns))
	for i, v := range identity {
		c := p.columns[i]
		if v == "" && !requiredColumns[c.Name] {
			continue
		}
		out[c.InName] = v
	}
	for name, v := range rec.Metrics {
		in, ok := p.metrics[name]
		if !ok || v.IsNull() {
			continue
		}
		out[in] = v.String()
	}
	return out
}

// parquetColumns builds the identity columns and one column per distinct
// metric name. A metric named like an identity column is dropped.
func parquetColumns(metricNames []string) []parquetColumn {
	used := make(map[string]bool)
	seen := make(map[string]bool)
	add := func(cols []parquetColumn, name string) []parquetColumn {
		seen[name] = true
		in := inName(name)
		for n := 2; used[in]; n++ {
			in = fmt.Sprintf("%s%d", inName(name), n)
		}
		used[in] = true
		return append(cols, parquetColumn{Name: name, InName: in})
	}

	cols := make([]parquetColumn, 0, len(identityColumns)+len(metricNames))
	for _, name := range identityColumns {
		cols = add(cols, name)
	}
	for _, name := range metricNames {
		if seen[name] {
			continue
		}
		cols = add(cols, name)
	}
	return cols
}

// inName turns a column name into the writer's field name, e.g.
// eps_estimate_fy1 to EpsEstimateFy1.
func inName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

type schemaNode struct {
	Tag    string       `json:"Tag"`
	Fields []schemaNode `json:"Fields,omitempty"`
}

func parquetSchema(columns []parquetColumn) (string, error) {
	root := schemaNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range columns {
		repetition := "OPTIONAL"
		if requiredColumns[c.Name] {
			repetition = "REQUIRED"
		}
		root.Fields = append(root.Fields, schemaNode{
			Tag: fmt.Sprintf("name=%s, inname=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=%s",
				c.Name, c.InName, repetition),
		})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("encoding parquet schema: %w", err)
	}
	return string(b), nil
}
