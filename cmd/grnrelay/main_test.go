package main

import (
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/record"
)

func TestParseLine(t *testing.T) {
	entry, err := parseLine("groonga.data\t1700000000\t{\"name\":\"Alice\",\"age\":30}")
	require.NoError(t, err)

	assert.Equal(t, "groonga.data", entry.Tag)
	assert.Equal(t, time.Unix(1700000000, 0), entry.Time)

	fields := entry.Record.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].Name)
	assert.Equal(t, "age", fields[1].Name)
	assert.Equal(t, record.KindInt, fields[1].Value.Kind())
}

// closedPort returns a local port with nothing listening on it
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunRelayReturnsOnFlushError(t *testing.T) {
	// Every flush fails against a dead engine while the reader keeps
	// producing far more lines than the entries channel can hold; the
	// loop must still surface the error instead of waiting on a reader
	// stuck behind a full channel.
	r, w, err := os.Pipe()
	require.NoError(t, err)

	cfg := config.New()
	cfg.Table = "Logs"
	cfg.Buffer.BatchSize = 8
	cfg.Connection.Host = "127.0.0.1"
	cfg.Connection.Port = closedPort(t)
	cfg.Timeouts.Request = time.Second
	cfg.Timeouts.Connection = time.Second

	go func() {
		defer func() { _ = w.Close() }()
		for i := 0; i < 100000; i++ {
			if _, err := fmt.Fprintf(w, "groonga.data\t1700000000\t{\"n\":%d}\n", i); err != nil {
				return
			}
		}
	}()

	result := make(chan error, 1)
	go func() { result <- runRelay(cfg, r) }()

	select {
	case err := <-result:
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	case <-time.After(5 * time.Second):
		t.Fatal("relay loop did not return after flush errors")
	}

	_ = r.Close()
}

func TestParseLineMalformed(t *testing.T) {
	cases := []string{
		"no tabs here",
		"tag\tonly-two-parts",
		"tag\tnot-a-number\t{}",
		"tag\t1700000000\tnot-json",
	}
	for _, line := range cases {
		_, err := parseLine(line)
		require.Error(t, err, "line %q", line)
	}
}
