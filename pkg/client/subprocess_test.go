package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/metrics"
)

// fakeEngineConfig builds a command-protocol config whose engine is a
// shell script. The managed flags land in the script's positional
// parameters: $1 is the input fd, $3 the output fd, $4 the database path.
func fakeEngineConfig(t *testing.T, script string, createDB bool) *config.Config {
	t.Helper()

	db := filepath.Join(t.TempDir(), "test.db")
	if createDB {
		require.NoError(t, os.WriteFile(db, []byte("db"), 0600))
	}

	cfg := config.New()
	cfg.Protocol = "command"
	cfg.Subprocess.Binary = "/bin/sh"
	cfg.Subprocess.Arguments = []string{"-c", script}
	cfg.Subprocess.Database = db
	cfg.Subprocess.ShutdownTimeout = 5 * time.Second
	return cfg
}

const echoEngine = `cat <&3 >&4`

func TestCommandClientLifecycle(t *testing.T) {
	c := NewCommandClient(fakeEngineConfig(t, echoEngine, true))
	require.NoError(t, c.Start())

	resp, err := c.Execute("status", nil)
	require.NoError(t, err)
	assert.Nil(t, resp, "subprocess bridge must not return replies")

	require.NoError(t, c.Shutdown())

	err = c.Shutdown()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))

	_, err = c.Execute("status", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
}

func TestCommandClientDoubleStart(t *testing.T) {
	c := NewCommandClient(fakeEngineConfig(t, echoEngine, true))
	require.NoError(t, c.Start())
	defer func() { _ = c.Shutdown() }()

	err := c.Start()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
}

func TestCommandClientShutdownBeforeStart(t *testing.T) {
	c := NewCommandClient(fakeEngineConfig(t, echoEngine, true))

	err := c.Shutdown()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
}

func TestCommandClientSpawnFailure(t *testing.T) {
	cfg := fakeEngineConfig(t, echoEngine, true)
	cfg.Subprocess.Binary = filepath.Join(t.TempDir(), "missing-engine")

	c := NewCommandClient(cfg)
	err := c.Start()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSubprocess))
}

func TestCommandClientCreatesDatabaseDirectory(t *testing.T) {
	// The database sits in a directory that does not exist yet; Start
	// must create it and pass -n to the child.
	cfg := fakeEngineConfig(t, `echo "$@" > /dev/null; cat <&3 >/dev/null`, false)
	cfg.Subprocess.Database = filepath.Join(t.TempDir(), "data", "new.db")

	c := NewCommandClient(cfg)
	require.NoError(t, c.Start())
	defer func() { _ = c.Shutdown() }()

	info, err := os.Stat(filepath.Dir(cfg.Subprocess.Database))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCommandClientProtocolFraming(t *testing.T) {
	// The script copies everything arriving on the input fd into a file
	// next to the database, so the test can assert the exact bytes the
	// bridge wrote: command line, then body lines, each newline-terminated.
	cfg := fakeEngineConfig(t, `cat <&3 > "$4.in"`, true)

	c := NewCommandClient(cfg)
	require.NoError(t, c.Start())

	_, err := c.Execute("status", nil)
	require.NoError(t, err)

	_, err = c.Execute(command.LoadCommand, []command.Argument{
		{Name: "table", Value: "Users"},
		{Name: command.ValuesArgument, Value: "[\n{\"name\":\"Alice\"}\n]"},
	})
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())

	written, err := os.ReadFile(cfg.Subprocess.Database + ".in")
	require.NoError(t, err)
	assert.Equal(t,
		"/d/status\n/d/load?table=Users\n[\n{\"name\":\"Alice\"}\n]\n",
		string(written))
}

func TestCommandClientDrainObservesChildOutput(t *testing.T) {
	script := `echo ready >&4; echo trouble >&2; cat <&3 >/dev/null`
	c := NewCommandClient(fakeEngineConfig(t, script, true))
	require.NoError(t, c.Start())

	outBefore := testutil.ToFloat64(metrics.DrainLines.WithLabelValues("output"))
	errBefore := testutil.ToFloat64(metrics.DrainLines.WithLabelValues("error"))

	// Give the pump goroutines a moment to buffer the child's greeting,
	// then drain it with an Execute.
	time.Sleep(200 * time.Millisecond)
	_, err := c.Execute("status", nil)
	require.NoError(t, err)

	assert.Equal(t, outBefore+1, testutil.ToFloat64(metrics.DrainLines.WithLabelValues("output")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.DrainLines.WithLabelValues("error")))

	require.NoError(t, c.Shutdown())
}

func TestCommandClientDrainNeverBlocks(t *testing.T) {
	// A child that emits nothing must not delay Execute.
	c := NewCommandClient(fakeEngineConfig(t, `cat <&3 >/dev/null`, true))
	require.NoError(t, c.Start())
	defer func() { _ = c.Shutdown() }()

	start := time.Now()
	_, err := c.Execute("status", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCommandClientShutdownTimeout(t *testing.T) {
	// A child that ignores EOF on its input must not hang shutdown.
	cfg := fakeEngineConfig(t, `sleep 3`, true)
	cfg.Subprocess.ShutdownTimeout = 200 * time.Millisecond

	c := NewCommandClient(cfg)
	require.NoError(t, c.Start())

	err := c.Shutdown()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSubprocess))
}
