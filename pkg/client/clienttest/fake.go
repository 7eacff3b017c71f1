// Package clienttest provides a scripted in-memory client for tests
package clienttest

import (
	"github.com/grnrelay/grnrelay/pkg/client"
	"github.com/grnrelay/grnrelay/pkg/command"
)

// Call records one Execute invocation
type Call struct {
	Name string
	Args []command.Argument
}

// Argument returns the value of a named argument from the call
func (c Call) Argument(name string) (string, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Fake is a scripted client. Responses are consumed per command name in
// FIFO order; commands without a scripted response yield a nil response,
// mimicking the fire-and-forget subprocess bridge.
type Fake struct {
	Started  bool
	Stopped  bool
	Calls    []Call
	Response map[string][]*client.Response
	Err      map[string]error
}

// NewFake creates an empty fake client
func NewFake() *Fake {
	return &Fake{
		Response: make(map[string][]*client.Response),
		Err:      make(map[string]error),
	}
}

// Script queues a response for a command name
func (f *Fake) Script(name string, resp *client.Response) {
	f.Response[name] = append(f.Response[name], resp)
}

// OK queues a bare success response for a command name
func (f *Fake) OK(name string) {
	f.Script(name, &client.Response{Code: 0})
}

// Start implements client.Client
func (f *Fake) Start() error {
	f.Started = true
	return nil
}

// Execute implements client.Client
func (f *Fake) Execute(name string, args []command.Argument) (*client.Response, error) {
	f.Calls = append(f.Calls, Call{Name: name, Args: args})

	if err, ok := f.Err[name]; ok {
		return nil, err
	}

	queue := f.Response[name]
	if len(queue) == 0 {
		return nil, nil
	}
	resp := queue[0]
	f.Response[name] = queue[1:]
	return resp, nil
}

// Shutdown implements client.Client
func (f *Fake) Shutdown() error {
	f.Stopped = true
	return nil
}

// CallNames returns the executed command names in order
func (f *Fake) CallNames() []string {
	names := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		names[i] = c.Name
	}
	return names
}
