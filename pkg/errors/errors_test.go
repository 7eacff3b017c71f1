package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	err := New(ErrorTypeConfig, "missing database path")
	assert.Equal(t, "config: missing database path", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrorTypeConnection, "engine request failed")

	assert.Equal(t, "connection: engine request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeSchema, "column_create failed").
		WithDetail("column", "age").
		WithDetail("code", -22)

	assert.Equal(t, "age", err.Details["column"])
	assert.Equal(t, -22, err.Details["code"])
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeState, "already shut down")
	assert.True(t, IsType(err, ErrorTypeState))
	assert.False(t, IsType(err, ErrorTypeConfig))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeState))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(wrapped, ErrorTypeState))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeSchema, "create failed")))
	assert.True(t, IsRetryable(New(ErrorTypeEngine, "load rejected")))
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "refused")))
	assert.False(t, IsRetryable(New(ErrorTypeConfig, "bad protocol")))
	assert.False(t, IsRetryable(New(ErrorTypeState, "not running")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}
