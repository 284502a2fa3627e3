// Package placeholder rewrites placeholder strings inside parsed pipelines
// with per-request values such as the dashboard's time bounds.
package placeholder

import (
	"time"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
)

// Placeholder keys recognised in query text.
const (
	From            = "$from"
	To              = "$to"
	DateBucketCount = "$dateBucketCount"
)

// Map maps a placeholder key to its replacement. A Map is built once per
// request and not modified afterwards.
type Map map[string]document.Value

// ForRange builds the placeholders available to a metric request.
func ForRange(r domain.TimeRange, intervalMs int64) Map {
	return Map{
		From:            document.Time(r.From),
		To:              document.Time(r.To),
		DateBucketCount: document.Int(BucketCount(r.From, r.To, intervalMs)),
	}
}

// Apply rewrites, in place, every field value in pipeline that is a string
// exactly equal to a key of m. Keys are never touched. It returns the number
// of values replaced.
func (m Map) Apply(pipeline []*document.Document) int {
	if len(m) == 0 {
		return 0
	}
	replaced := 0
	visit := func(_ string, v document.Value) (document.Value, bool) {
		s, ok := v.AsString()
		if !ok {
			return document.Value{}, false
		}
		repl, ok := m[s]
		if !ok {
			return document.Value{}, false
		}
		replaced++
		return repl.Clone(), true
	}
	for _, stage := range pipeline {
		document.Walk(stage, visit)
	}
	return replaced
}

// BucketCount returns how many steps of intervalMs, starting at from, it
// takes to reach or pass to. An exact multiple k of the interval yields k,
// anything else rounds up. Non-positive intervals and empty ranges yield 0.
func BucketCount(from, to time.Time, intervalMs int64) int64 {
	if intervalMs <= 0 {
		return 0
	}
	span := to.UnixMilli() - from.UnixMilli()
	if span <= 0 {
		return 0
	}
	n := span / intervalMs
	if span%intervalMs != 0 {
		n++
	}
	return n
}
