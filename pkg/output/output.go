// Package output provides the host-framework integration surface: the
// Configure/Start/Write/Shutdown lifecycle hooks the buffering framework
// calls around delivered chunks.
package output

import (
	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/client"
	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/emitter"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/record"
)

// GroongaOutput relays buffered record batches into the engine through the
// client selected by the configured protocol.
type GroongaOutput struct {
	cfg     *config.Config
	client  client.Client
	emitter *emitter.Emitter
	logger  *zap.Logger

	configured bool
	started    bool
}

// New creates an unconfigured output
func New() *GroongaOutput {
	return &GroongaOutput{
		logger: logger.Get().With(zap.String("component", "output")),
	}
}

// Configure validates the configuration and instantiates the client and
// emitter. Configuration errors are fatal to plugin startup.
func (o *GroongaOutput) Configure(cfg *config.Config) error {
	if o.configured {
		return errors.New(errors.ErrorTypeState, "output already configured")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	c, err := client.New(cfg.Protocol, cfg)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.client = c
	o.emitter = emitter.New(c, cfg.Table, cfg.CommandPrefix)
	o.configured = true

	o.logger = o.logger.With(
		zap.String("protocol", cfg.Protocol),
		zap.String("table", cfg.Table),
	)
	o.logger.Info("output configured")
	return nil
}

// Start acquires the client's resources. Start errors abort startup.
func (o *GroongaOutput) Start() error {
	if !o.configured {
		return errors.New(errors.ErrorTypeState, "output is not configured")
	}
	if o.started {
		return errors.New(errors.ErrorTypeState, "output already started")
	}

	if err := o.client.Start(); err != nil {
		return err
	}
	o.started = true
	return nil
}

// Write relays one delivered chunk. The returned count is the number of
// records rejected for unencodable values; an error means the chunk should
// be re-delivered by the host framework.
func (o *GroongaOutput) Write(batch record.Batch) (int, error) {
	if !o.started {
		return 0, errors.New(errors.ErrorTypeState, "output is not started")
	}
	return o.emitter.Emit(batch)
}

// Shutdown releases the client. The output is terminal afterwards.
func (o *GroongaOutput) Shutdown() error {
	if !o.started {
		return errors.New(errors.ErrorTypeState, "output is not started")
	}
	o.started = false
	return o.client.Shutdown()
}
