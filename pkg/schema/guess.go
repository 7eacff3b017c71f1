// Package schema provides type guessing and lazy schema management for the
// engine's tables and columns.
package schema

import (
	"math"
	"regexp"
	"time"

	"github.com/grnrelay/grnrelay/pkg/record"
)

// ColumnType is an engine column value type
type ColumnType string

const (
	ColumnTypeTime     ColumnType = "Time"
	ColumnTypeInt32    ColumnType = "Int32"
	ColumnTypeInt64    ColumnType = "Int64"
	ColumnTypeFloat    ColumnType = "Float"
	ColumnTypeGeoPoint ColumnType = "WGS84GeoPoint"
	ColumnTypeText     ColumnType = "Text"
)

// timeWindow bounds the epoch-seconds heuristic. Epoch seconds and small
// integers are otherwise indistinguishable; the window bounds false positives.
const timeWindow = 10 * 365 * 24 * 3600 * time.Second

// geoPointPattern matches latitude/longitude pairs, comma- or x-separated,
// decimal parts mandatory.
var geoPointPattern = regexp.MustCompile(`^-?\d+(\.\d+)[,x]-?\d+(\.\d+)$`)

// TypeGuesser infers a column's value type and vector-ness from a batch of
// sample values. Guessing is a pure function of the sample set; the guesser
// carries no state besides the clock used for the Time window.
type TypeGuesser struct {
	now func() time.Time
}

// NewTypeGuesser creates a guesser using the wall clock
func NewTypeGuesser() *TypeGuesser {
	return &TypeGuesser{now: time.Now}
}

// NewTypeGuesserAt creates a guesser with a fixed clock, for tests
func NewTypeGuesserAt(now time.Time) *TypeGuesser {
	return &TypeGuesser{now: func() time.Time { return now }}
}

// Guess returns the column type and vector flag for a non-empty sample set.
// The type predicates are ordered narrowest first; the first match wins and
// Text is the universal fallback, so Guess is total and never fails.
//
// Vector detection only tests whether samples are themselves lists; the base
// type guess runs over the outer samples without flattening, so a sample set
// of lists falls through to Text.
func (g *TypeGuesser) Guess(samples []record.Value) (ColumnType, bool) {
	vector := false
	for _, s := range samples {
		if s.Kind() == record.KindVector {
			vector = true
			break
		}
	}

	switch {
	case g.timeValues(samples):
		return ColumnTypeTime, vector
	case intValuesWithin(samples, math.MinInt32, math.MaxInt32):
		return ColumnTypeInt32, vector
	case intValues(samples):
		return ColumnTypeInt64, vector
	case floatValues(samples):
		return ColumnTypeFloat, vector
	case geoPointValues(samples):
		return ColumnTypeGeoPoint, vector
	default:
		return ColumnTypeText, vector
	}
}

// timeValues reports whether every sample is an integer within ten years of
// the current time in either direction.
func (g *TypeGuesser) timeValues(samples []record.Value) bool {
	now := g.now().Unix()
	min := now - int64(timeWindow/time.Second)
	max := now + int64(timeWindow/time.Second)
	return intValuesWithin(samples, min, max)
}

func intValues(samples []record.Value) bool {
	for _, s := range samples {
		if s.Kind() != record.KindInt {
			return false
		}
	}
	return len(samples) > 0
}

func intValuesWithin(samples []record.Value, min, max int64) bool {
	for _, s := range samples {
		if s.Kind() != record.KindInt {
			return false
		}
		if v := s.IntValue(); v < min || v > max {
			return false
		}
	}
	return len(samples) > 0
}

// floatValues accepts floats and integers; integers are float-compatible
func floatValues(samples []record.Value) bool {
	for _, s := range samples {
		if k := s.Kind(); k != record.KindFloat && k != record.KindInt {
			return false
		}
	}
	return len(samples) > 0
}

func geoPointValues(samples []record.Value) bool {
	for _, s := range samples {
		if s.Kind() != record.KindString {
			return false
		}
		if !geoPointPattern.MatchString(s.StringValue()) {
			return false
		}
	}
	return len(samples) > 0
}
