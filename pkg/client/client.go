// Package client provides the engine client abstraction and its two
// implementations: an HTTP client for a remote engine and a subprocess
// bridge that drives a locally spawned engine over dedicated pipes.
package client

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/logger"
)

// Client executes engine commands. Implementations are not safe for
// concurrent Execute calls; the relay core serializes access.
type Client interface {
	// Start acquires the client's resources (connection or child process)
	Start() error
	// Execute runs one named command. The response may be nil for
	// fire-and-forget transports (the subprocess bridge).
	Execute(name string, args []command.Argument) (*Response, error)
	// Shutdown releases resources. Further calls are state errors.
	Shutdown() error
}

// Factory creates a client instance from configuration
type Factory func(cfg *config.Config) (Client, error)

// Registry maps protocol names to client factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty client registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "client_registry")),
	}
}

// Register adds a protocol factory
func (r *Registry) Register(protocol string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[protocol]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("protocol %s already registered", protocol))
	}

	r.factories[protocol] = factory
	r.logger.Info("client protocol registered", zap.String("protocol", protocol))
	return nil
}

// Create instantiates a client for the given protocol
func (r *Registry) Create(protocol string, cfg *config.Config) (Client, error) {
	r.mu.RLock()
	factory, exists := r.factories[protocol]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("protocol %s not found", protocol))
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create %s client", protocol))
	}

	return c, nil
}

// Protocols returns the registered protocol names
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Register adds a protocol factory to the global registry
func Register(protocol string, factory Factory) error {
	return globalRegistry.Register(protocol, factory)
}

// New creates a client for the given protocol from the global registry
func New(protocol string, cfg *config.Config) (Client, error) {
	return globalRegistry.Create(protocol, cfg)
}

// Protocols lists protocols registered in the global registry
func Protocols() []string {
	return globalRegistry.Protocols()
}

func init() {
	_ = Register("http", func(cfg *config.Config) (Client, error) {
		return NewHTTPClient(cfg), nil
	})
	_ = Register("command", func(cfg *config.Config) (Client, error) {
		return NewCommandClient(cfg), nil
	})
}
