// Package emitter partitions delivered batches into data and control
// records and drives the schema and client in arrival order.
package emitter

import (
	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/client"
	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/json"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/metrics"
	"github.com/grnrelay/grnrelay/pkg/record"
	"github.com/grnrelay/grnrelay/pkg/schema"
)

// Emitter relays one delivered batch per Emit call. It owns the schema
// cache for its target table and serializes all client access, so at most
// one command is outstanding at a time.
type Emitter struct {
	client     client.Client
	schema     *schema.Schema
	classifier *record.Classifier
	table      string
	logger     *zap.Logger
}

// New creates an emitter. An empty table disables the store path; control
// commands still execute.
func New(c client.Client, table string, commandPrefix string) *Emitter {
	e := &Emitter{
		client:     c,
		classifier: record.NewClassifier(commandPrefix),
		table:      table,
		logger: logger.Get().With(
			zap.String("component", "emitter"),
			zap.String("table", table),
		),
	}
	if table != "" {
		e.schema = schema.New(c, table)
	}
	return e
}

// Emit relays the batch in original order. Data records accumulate and are
// flushed as one load; a control record first flushes the accumulator so
// explicit commands are never reordered relative to surrounding data, then
// executes immediately with the record's fields as arguments.
//
// The returned count is the number of records rejected for unencodable
// values; those are skipped so one bad record cannot sink the chunk.
// Schema and client failures abort the call and propagate for re-delivery.
func (e *Emitter) Emit(batch record.Batch) (int, error) {
	rejected := 0
	var pending []*record.Record

	for _, entry := range batch {
		kind, name := e.classifier.Classify(entry.Tag)
		if kind == record.TagData {
			pending = append(pending, entry.Record)
			continue
		}

		n, err := e.flush(pending)
		rejected += n
		if err != nil {
			return rejected, err
		}
		pending = pending[:0]

		if err := e.executeCommand(name, entry.Record); err != nil {
			return rejected, err
		}
	}

	n, err := e.flush(pending)
	rejected += n
	return rejected, err
}

// flush stores accumulated data records: schema update, then one load
func (e *Emitter) flush(records []*record.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if e.table == "" {
		e.logger.Debug("no table configured, dropping data records",
			zap.Int("count", len(records)))
		return 0, nil
	}

	if err := e.schema.Update(records); err != nil {
		return 0, err
	}

	values, loaded, rejected := encodeValues(records)
	if rejected > 0 {
		metrics.RecordsRejected.Add(float64(rejected))
		e.logger.Warn("rejected unencodable records", zap.Int("count", rejected))
	}
	if loaded == 0 {
		return rejected, nil
	}

	resp, err := e.client.Execute(command.LoadCommand, []command.Argument{
		{Name: "table", Value: e.table},
		{Name: command.ValuesArgument, Value: values},
	})
	if err != nil {
		return rejected, err
	}
	if resp != nil && !resp.OK() {
		return rejected, errors.New(errors.ErrorTypeEngine, "load rejected by engine").
			WithDetail("code", resp.Code).
			WithDetail("raw", string(resp.Raw))
	}

	metrics.RecordsLoaded.Add(float64(loaded))
	e.logger.Debug("records loaded", zap.Int("count", loaded))
	return rejected, nil
}

// executeCommand runs an explicit control command with the record's fields
// as arguments. A reply with a non-zero code is logged; control commands
// are best-effort and do not abort the chunk.
func (e *Emitter) executeCommand(name string, r *record.Record) error {
	args, err := commandArguments(r)
	if err != nil {
		metrics.RecordsRejected.Inc()
		e.logger.Warn("rejected unencodable command record",
			zap.String("command", name),
			zap.Error(err))
		return nil
	}

	resp, err := e.client.Execute(name, args)
	if err != nil {
		return err
	}
	if resp != nil && !resp.OK() {
		e.logger.Error("command failed",
			zap.String("command", name),
			zap.Int("code", resp.Code),
			zap.ByteString("raw", resp.Raw))
	}
	return nil
}

// encodeValues encodes records as one JSON array, skipping records whose
// values cannot be serialized
func encodeValues(records []*record.Record) (string, int, int) {
	buf := json.GetBuffer()
	defer json.PutBuffer(buf)

	loaded := 0
	rejected := 0

	buf.WriteByte('[')
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			rejected++
			continue
		}
		if loaded > 0 {
			buf.WriteByte(',')
		}
		buf.Write(data)
		loaded++
	}
	buf.WriteByte(']')

	return buf.String(), loaded, rejected
}

// commandArguments converts record fields into command arguments in field
// order. String values pass through; other values carry their JSON text.
func commandArguments(r *record.Record) ([]command.Argument, error) {
	fields := r.Fields()
	args := make([]command.Argument, 0, len(fields))
	for _, f := range fields {
		var value string
		if f.Value.Kind() == record.KindString {
			value = f.Value.StringValue()
		} else {
			data, err := json.Marshal(f.Value)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "unencodable argument").
					WithDetail("field", f.Name)
			}
			value = string(data)
		}
		args = append(args, command.Argument{Name: f.Name, Value: value})
	}
	return args, nil
}
