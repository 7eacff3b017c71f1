package client

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/metrics"
)

// Child fd numbers for the protocol pipes. exec.Cmd.ExtraFiles binds entry
// i at fd 3+i, so the numbers are deterministic.
const (
	childInputFD  = 3
	childOutputFD = 4
)

// drainBuffer bounds how many unread child lines are retained between
// drain passes before the pump goroutines block.
const drainBuffer = 256

type clientState int

const (
	stateStopped clientState = iota
	stateRunning
	stateTerminated
)

// CommandClient drives a locally spawned engine process through the
// line-oriented command protocol carried over dedicated pipes, distinct
// from the child's standard streams so protocol traffic cannot be polluted
// by incidental process output.
//
// Replies are consumed opportunistically: each Execute performs a single
// non-blocking drain pass over the output and error pipes, so a call may
// observe zero, partial, or stale reply text. Execute therefore returns a
// nil Response. A slow or wedged child can never stall the write path.
type CommandClient struct {
	cfg    *config.Config
	logger *zap.Logger

	state clientState
	cmd   *exec.Cmd

	input  *os.File
	writer *bufio.Writer
	output *os.File
	errOut *os.File

	outputLines chan string
	errorLines  chan string
}

// NewCommandClient creates a subprocess client from configuration
func NewCommandClient(cfg *config.Config) *CommandClient {
	return &CommandClient{
		cfg: cfg,
		logger: logger.Get().With(
			zap.String("component", "command_client"),
			zap.String("binary", cfg.Subprocess.Binary),
			zap.String("database", cfg.Subprocess.Database),
		),
	}
}

// Start spawns the engine with the protocol pipes bound at explicit fd
// numbers. Spawn failure is fatal; the client stays Stopped.
func (c *CommandClient) Start() error {
	if c.state != stateStopped {
		return errors.New(errors.ErrorTypeState, "command client already started")
	}

	inputRead, inputWrite, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSubprocess, "failed to create input pipe")
	}
	outputRead, outputWrite, err := os.Pipe()
	if err != nil {
		closeAll(inputRead, inputWrite)
		return errors.Wrap(err, errors.ErrorTypeSubprocess, "failed to create output pipe")
	}
	errorRead, errorWrite, err := os.Pipe()
	if err != nil {
		closeAll(inputRead, inputWrite, outputRead, outputWrite)
		return errors.Wrap(err, errors.ErrorTypeSubprocess, "failed to create error pipe")
	}

	args := append([]string{}, c.cfg.Subprocess.Arguments...)
	args = append(args,
		"--input-fd", strconv.Itoa(childInputFD),
		"--output-fd", strconv.Itoa(childOutputFD),
	)

	database := c.cfg.Subprocess.Database
	if _, statErr := os.Stat(database); os.IsNotExist(statErr) {
		if mkErr := os.MkdirAll(filepath.Dir(database), 0750); mkErr != nil {
			closeAll(inputRead, inputWrite, outputRead, outputWrite, errorRead, errorWrite)
			return errors.Wrap(mkErr, errors.ErrorTypeSubprocess, "failed to create database directory")
		}
		args = append(args, "-n")
	}
	args = append(args, database)

	cmd := exec.Command(c.cfg.Subprocess.Binary, args...) //nolint:gosec // G204: binary comes from validated configuration
	cmd.ExtraFiles = []*os.File{inputRead, outputWrite}
	cmd.Stderr = errorWrite

	if err := cmd.Start(); err != nil {
		closeAll(inputRead, inputWrite, outputRead, outputWrite, errorRead, errorWrite)
		return errors.Wrap(err, errors.ErrorTypeSubprocess, "failed to spawn engine").
			WithDetail("binary", c.cfg.Subprocess.Binary).
			WithDetail("args", args)
	}

	// The child owns its pipe ends now
	closeAll(inputRead, outputWrite, errorWrite)

	c.cmd = cmd
	c.input = inputWrite
	c.writer = bufio.NewWriter(inputWrite)
	c.output = outputRead
	c.errOut = errorRead
	c.outputLines = make(chan string, drainBuffer)
	c.errorLines = make(chan string, drainBuffer)
	c.state = stateRunning

	go pumpLines(outputRead, c.outputLines)
	go pumpLines(errorRead, c.errorLines)

	c.logger.Info("engine spawned",
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", args))

	return nil
}

// Execute writes one command line (plus body lines for load), flushes, and
// performs a single non-blocking drain pass. The returned Response is
// always nil; replies surface through the drain log only.
func (c *CommandClient) Execute(name string, args []command.Argument) (*Response, error) {
	if c.state != stateRunning {
		return nil, errors.New(errors.ErrorTypeState, "command client is not running")
	}

	cmd := command.New(name, args...)
	line := cmd.EncodeLine()

	if err := c.writeLine(line); err != nil {
		return nil, err
	}
	for _, bodyLine := range cmd.Body() {
		if err := c.writeLine(bodyLine); err != nil {
			return nil, err
		}
	}
	if err := c.writer.Flush(); err != nil {
		return nil, c.fatalWrite(err, line)
	}

	metrics.CommandsExecuted.WithLabelValues(name).Inc()
	c.drain(line)

	return nil, nil
}

func (c *CommandClient) writeLine(line string) error {
	if _, err := c.writer.WriteString(line); err != nil {
		return c.fatalWrite(err, line)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return c.fatalWrite(err, line)
	}
	return nil
}

// fatalWrite marks the instance dead after a pipe I/O failure. The child's
// state is unknown, so no reconnect is attempted; closing the input pipe
// lets the child see EOF and exit on its own.
func (c *CommandClient) fatalWrite(err error, line string) error {
	c.state = stateTerminated
	_ = c.input.Close()
	return errors.Wrap(err, errors.ErrorTypeSubprocess, "engine pipe write failed").
		WithDetail("request", line)
}

// drain performs one zero-timeout pass over the output and error pipes,
// logging whatever lines the pump goroutines have already buffered. It
// never blocks: if nothing is ready it returns immediately without having
// consumed a reply.
func (c *CommandClient) drain(tag string) {
	var out, errLines []string

collectOutput:
	for {
		select {
		case line, ok := <-c.outputLines:
			if !ok {
				break collectOutput
			}
			out = append(out, line)
		default:
			break collectOutput
		}
	}

collectError:
	for {
		select {
		case line, ok := <-c.errorLines:
			if !ok {
				break collectError
			}
			errLines = append(errLines, line)
		default:
			break collectError
		}
	}

	if len(out) > 0 {
		metrics.DrainLines.WithLabelValues("output").Add(float64(len(out)))
		c.logger.Debug("engine output",
			zap.String("request", tag),
			zap.Strings("lines", out))
	}
	if len(errLines) > 0 {
		metrics.DrainLines.WithLabelValues("error").Add(float64(len(errLines)))
		c.logger.Error("engine error output",
			zap.String("request", tag),
			zap.Strings("lines", errLines))
	}
}

// Shutdown closes the input pipe to signal EOF, drains once more, then
// waits for the child to exit within the configured bound. The client is
// terminal afterwards; restart is not supported.
func (c *CommandClient) Shutdown() error {
	switch c.state {
	case stateStopped:
		return errors.New(errors.ErrorTypeState, "command client was never started")
	case stateTerminated:
		return errors.New(errors.ErrorTypeState, "command client already shut down")
	}
	c.state = stateTerminated

	_ = c.writer.Flush()
	if err := c.input.Close(); err != nil {
		c.logger.Warn("failed to close engine input", zap.Error(err))
	}

	c.drain("shutdown")

	_ = c.output.Close()
	_ = c.errOut.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			// Already exited abnormally; not actionable during teardown
			c.logger.Warn("engine exited abnormally", zap.Error(err))
		} else {
			c.logger.Info("engine exited")
		}
	case <-time.After(c.cfg.Subprocess.ShutdownTimeout):
		return errors.New(errors.ErrorTypeSubprocess, "engine did not exit before shutdown timeout").
			WithDetail("timeout", c.cfg.Subprocess.ShutdownTimeout.String()).
			WithDetail("pid", c.cmd.Process.Pid)
	}

	return nil
}

// pumpLines feeds child output into a buffered channel line by line.
// The goroutine exits when the pipe is closed at shutdown.
func pumpLines(r *os.File, out chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
