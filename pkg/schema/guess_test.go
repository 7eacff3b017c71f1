package schema

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/grnrelay/grnrelay/pkg/record"
)

var guessNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func guessAt(t *testing.T, samples ...record.Value) (ColumnType, bool) {
	t.Helper()
	return NewTypeGuesserAt(guessNow).Guess(samples)
}

func TestGuessTime(t *testing.T) {
	now := guessNow.Unix()

	typ, vector := guessAt(t, record.Int(now), record.Int(now-3600), record.Int(now+86400))
	assert.Equal(t, ColumnTypeTime, typ)
	assert.False(t, vector)
}

func TestGuessTimePriorityOverInt32(t *testing.T) {
	// Small epoch-window integers satisfy both Time and Int32; Time is
	// narrower and must win.
	now := guessNow.Unix()
	typ, _ := guessAt(t, record.Int(now))
	assert.Equal(t, ColumnTypeTime, typ)
}

func TestGuessInt32(t *testing.T) {
	typ, _ := guessAt(t, record.Int(1), record.Int(-42), record.Int(100))
	assert.Equal(t, ColumnTypeInt32, typ)

	typ, _ = guessAt(t, record.Int(math.MinInt32), record.Int(math.MaxInt32))
	assert.Equal(t, ColumnTypeInt32, typ)
}

func TestGuessInt64(t *testing.T) {
	typ, _ := guessAt(t, record.Int(math.MaxInt32+1))
	assert.Equal(t, ColumnTypeInt64, typ)

	typ, _ = guessAt(t, record.Int(1), record.Int(math.MinInt64))
	assert.Equal(t, ColumnTypeInt64, typ)
}

func TestGuessFloat(t *testing.T) {
	typ, _ := guessAt(t, record.Float(2.5))
	assert.Equal(t, ColumnTypeFloat, typ)
}

func TestGuessFloatAcceptsIntegers(t *testing.T) {
	// Integers are float-compatible, so a mixed int/float sample set is
	// Float, not Int64.
	typ, _ := guessAt(t, record.Int(1), record.Float(2.5))
	assert.Equal(t, ColumnTypeFloat, typ)
}

func TestGuessGeoPoint(t *testing.T) {
	cases := []string{
		"35.6895,139.6917",
		"-35.6895x139.6917",
		"0.0,-0.0",
	}
	for _, c := range cases {
		typ, _ := guessAt(t, record.String(c))
		assert.Equal(t, ColumnTypeGeoPoint, typ, "sample %q", c)
	}
}

func TestGuessGeoPointRequiresDecimalParts(t *testing.T) {
	typ, _ := guessAt(t, record.String("35,139"))
	assert.Equal(t, ColumnTypeText, typ)
}

func TestGuessTextFallback(t *testing.T) {
	typ, _ := guessAt(t, record.String("hello"))
	assert.Equal(t, ColumnTypeText, typ)

	// Mixed-type samples fall back to Text
	typ, _ = guessAt(t, record.Int(1), record.String("x"))
	assert.Equal(t, ColumnTypeText, typ)

	typ, _ = guessAt(t, record.Bool(true))
	assert.Equal(t, ColumnTypeText, typ)

	typ, _ = guessAt(t, record.Null())
	assert.Equal(t, ColumnTypeText, typ)
}

func TestGuessVector(t *testing.T) {
	typ, vector := guessAt(t,
		record.Vector(record.Int(1), record.Int(2)),
		record.Vector(record.Int(3), record.Int(4)),
	)
	// Vector samples are not flattened: the base guess runs over the
	// outer list values and falls through to Text.
	assert.True(t, vector)
	assert.Equal(t, ColumnTypeText, typ)
}

func TestGuessVectorMixedWithScalars(t *testing.T) {
	_, vector := guessAt(t, record.String("a"), record.Vector(record.String("b")))
	assert.True(t, vector)
}

func TestGuessTotality(t *testing.T) {
	known := map[ColumnType]bool{
		ColumnTypeTime:     true,
		ColumnTypeInt32:    true,
		ColumnTypeInt64:    true,
		ColumnTypeFloat:    true,
		ColumnTypeGeoPoint: true,
		ColumnTypeText:     true,
	}

	sampleSets := [][]record.Value{
		{record.Int(0)},
		{record.Int(guessNow.Unix())},
		{record.Float(1.5), record.Int(2)},
		{record.String("1.0,2.0")},
		{record.String("free text"), record.Null()},
		{record.Vector()},
		{record.Bool(false), record.Vector(record.Null())},
	}
	for _, samples := range sampleSets {
		typ, _ := guessAt(t, samples...)
		assert.True(t, known[typ], "unexpected type %q", typ)
	}
}
