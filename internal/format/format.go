// Package format shapes raw result documents into the frames graphing
// clients read: named time series or a single table.
package format

import (
	"bytes"
	"strconv"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
)

// Document fields the time series formatter reads.
const (
	NameField      = "name"
	ValueField     = "value"
	TimestampField = "ts"
)

// Frame is one named entry of a formatted result.
type Frame interface {
	Name() string
}

// Result is the ordered list of frames one sub-query produced.
type Result []Frame

// Formatter converts a sub-query's documents into a Result.
type Formatter func(docs []*document.Document) (Result, error)

// For returns the formatter for a target type: time series for
// domain.ShapeTimeSeries, table for anything else.
func For(shape string) Formatter {
	if shape == domain.ShapeTimeSeries {
		return TimeSeries
	}
	return Table
}

// Datapoint is a (value, epoch milliseconds) pair, encoded as a two element
// JSON array.
type Datapoint struct {
	Value     document.Value
	Timestamp int64
}

// MarshalJSON implements json.Marshaler.
func (d Datapoint) MarshalJSON() ([]byte, error) {
	v, err := d.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(v)
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatInt(d.Timestamp, 10))
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Series is one named time series. Target keeps the type of the name
// field it came from.
type Series struct {
	Target     document.Value `json:"target"`
	Datapoints []Datapoint `json:"datapoints"`
}

// Name implements Frame.
func (s *Series) Name() string { return s.Target.String() }

// TimeSeries groups documents by their name field. Series appear in the order
// their name was first seen and datapoints keep document order. Names that
// render to the same string share one series, which keeps the first name
// seen.
func TimeSeries(docs []*document.Document) (Result, error) {
	var out Result
	byName := make(map[string]*Series)

	for i, doc := range docs {
		nameVal, ok := doc.Get(NameField)
		if !ok {
			return nil, domain.ErrFormatting("document %d has no %q field", i, NameField)
		}
		tsVal, ok := doc.Get(TimestampField)
		if !ok {
			return nil, domain.ErrFormatting("document %d has no %q field", i, TimestampField)
		}
		ts, ok := tsVal.AsTime()
		if !ok {
			return nil, domain.ErrFormatting("document %d: field %q is %s, want a date", i, TimestampField, tsVal.Kind())
		}
		value, _ := doc.Get(ValueField)

		key := nameVal.String()
		s, ok := byName[key]
		if !ok {
			s = &Series{Target: nameVal, Datapoints: []Datapoint{}}
			byName[key] = s
			out = append(out, s)
		}
		s.Datapoints = append(s.Datapoints, Datapoint{Value: value, Timestamp: document.Millis(ts)})
	}
	return out, nil
}

const columnTypeText = "text"

// Column describes one table column.
type Column struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// TableFrame is a table of rows aligned with Columns.
type TableFrame struct {
	Columns []Column           `json:"columns"`
	Rows    [][]document.Value `json:"rows"`
	Type    string             `json:"type"`
}

// Name implements Frame.
func (t *TableFrame) Name() string { return "table" }

// Table builds one table whose columns are the union of every document's
// field names in first-seen order. Missing fields are null cells.
func Table(docs []*document.Document) (Result, error) {
	var names []string
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, key := range doc.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, key)
		}
	}

	t := &TableFrame{
		Columns: make([]Column, len(names)),
		Rows:    make([][]document.Value, 0, len(docs)),
		Type:    "table",
	}
	for i, name := range names {
		t.Columns[i] = Column{Text: name, Type: columnTypeText}
	}
	for _, doc := range docs {
		row := make([]document.Value, len(names))
		for i, name := range names {
			if v, ok := doc.Get(name); ok {
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return Result{t}, nil
}
