package schema

import (
	"strings"

	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/client"
	"github.com/grnrelay/grnrelay/pkg/command"
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/metrics"
	"github.com/grnrelay/grnrelay/pkg/record"
)

// Table describes the target table. KeyType is empty for tables without a
// primary key. Once established it never changes for the cache's lifetime.
type Table struct {
	Name    string
	KeyType string
}

// Column describes a cached column. A column is never re-guessed once
// cached, even if later samples would imply a different type.
type Column struct {
	Name   string
	Type   ColumnType
	Vector bool
}

// Schema caches the remote table and columns for one target table and
// creates missing objects on demand. One Schema instance is owned by one
// emitter; it is not designed for sharing across instances.
type Schema struct {
	client  client.Client
	table   string
	guesser *TypeGuesser
	logger  *zap.Logger

	// populated flips after the first successful remote discovery;
	// the caches below are additive-only afterwards
	populated bool
	tableDef  *Table
	columns   map[string]*Column
}

// New creates a schema manager for the configured target table
func New(c client.Client, table string) *Schema {
	return &Schema{
		client:  c,
		table:   table,
		guesser: NewTypeGuesser(),
		logger: logger.Get().With(
			zap.String("component", "schema"),
			zap.String("table", table),
		),
		columns: make(map[string]*Column),
	}
}

// Update makes sure the target table and every field of the given records
// exist remotely before a load. The first call discovers existing objects;
// later calls only create columns for field names never seen before.
//
// A reply with a non-zero return code aborts with a schema error carrying
// the offending command, since continuing would send loads referencing
// columns that do not exist. Transports that cannot return replies (the
// subprocess bridge) yield nil responses; remote state is then unknown and
// creation proceeds, with engine-side failures surfacing through the
// drain log instead.
func (s *Schema) Update(records []*record.Record) error {
	if !s.populated {
		if err := s.ensureTable(); err != nil {
			return err
		}
		if err := s.ensureColumns(); err != nil {
			return err
		}
		s.populated = true
	}

	names, samples := collectSamples(records)
	for _, name := range names {
		if _, cached := s.columns[name]; cached {
			continue
		}
		if err := s.createColumn(name, samples[name]); err != nil {
			return err
		}
	}

	return nil
}

// Columns returns the cached columns keyed by name
func (s *Schema) Columns() map[string]*Column {
	return s.columns
}

// ensureTable discovers the target table or creates it without a key
func (s *Schema) ensureTable() error {
	resp, err := s.client.Execute("table_list", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchema, "table discovery failed")
	}

	if resp != nil {
		if !resp.OK() {
			return errors.New(errors.ErrorTypeSchema, "table_list failed").
				WithDetail("code", resp.Code).
				WithDetail("raw", string(resp.Raw))
		}
		for _, row := range bodyRows(resp) {
			if row["name"] == s.table {
				s.tableDef = &Table{
					Name:    s.table,
					KeyType: row["domain"],
				}
				s.logger.Info("table discovered", zap.String("key_type", s.tableDef.KeyType))
				return nil
			}
		}
	}

	args := []command.Argument{
		{Name: "name", Value: s.table},
		{Name: "flags", Value: "TABLE_NO_KEY"},
	}
	resp, err = s.client.Execute("table_create", args)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchema, "table creation failed")
	}
	if err := checkSchemaReply(resp, "table_create", args); err != nil {
		return err
	}

	s.tableDef = &Table{Name: s.table}
	metrics.SchemaObjectsCreated.WithLabelValues("table").Inc()
	s.logger.Info("table created")
	return nil
}

// ensureColumns caches the columns that already exist remotely
func (s *Schema) ensureColumns() error {
	resp, err := s.client.Execute("column_list", []command.Argument{
		{Name: "table", Value: s.table},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchema, "column discovery failed")
	}
	if resp == nil {
		return nil
	}
	if !resp.OK() {
		return errors.New(errors.ErrorTypeSchema, "column_list failed").
			WithDetail("code", resp.Code).
			WithDetail("raw", string(resp.Raw))
	}

	for _, row := range bodyRows(resp) {
		name := row["name"]
		if name == "" || name == "_key" || name == "_id" {
			continue
		}
		s.columns[name] = &Column{
			Name:   name,
			Type:   ColumnType(row["range"]),
			Vector: strings.Contains(row["flags"], "COLUMN_VECTOR"),
		}
	}

	s.logger.Info("columns discovered", zap.Int("count", len(s.columns)))
	return nil
}

// createColumn guesses a type from the samples and creates the column
func (s *Schema) createColumn(name string, samples []record.Value) error {
	columnType, vector := s.guesser.Guess(samples)

	flags := "COLUMN_SCALAR"
	if vector {
		flags = "COLUMN_VECTOR"
	}

	args := []command.Argument{
		{Name: "table", Value: s.table},
		{Name: "name", Value: name},
		{Name: "flags", Value: flags},
		{Name: "type", Value: string(columnType)},
	}
	resp, err := s.client.Execute("column_create", args)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchema, "column creation failed").
			WithDetail("column", name)
	}
	if err := checkSchemaReply(resp, "column_create", args); err != nil {
		return err
	}

	s.columns[name] = &Column{Name: name, Type: columnType, Vector: vector}
	metrics.SchemaObjectsCreated.WithLabelValues("column").Inc()
	s.logger.Info("column created",
		zap.String("column", name),
		zap.String("type", string(columnType)),
		zap.Bool("vector", vector))
	return nil
}

// checkSchemaReply surfaces a failed schema mutation with its payload
func checkSchemaReply(resp *client.Response, name string, args []command.Argument) error {
	if resp == nil || resp.OK() {
		return nil
	}
	e := errors.New(errors.ErrorTypeSchema, name+" failed").
		WithDetail("code", resp.Code).
		WithDetail("raw", string(resp.Raw))
	for _, a := range args {
		e = e.WithDetail("arg_"+a.Name, a.Value)
	}
	return e
}

// collectSamples scans every field across the batch, returning field names
// in first-seen order with the values observed for each.
func collectSamples(records []*record.Record) ([]string, map[string][]record.Value) {
	var names []string
	samples := make(map[string][]record.Value)

	for _, r := range records {
		for _, f := range r.Fields() {
			if _, seen := samples[f.Name]; !seen {
				names = append(names, f.Name)
			}
			samples[f.Name] = append(samples[f.Name], f.Value)
		}
	}

	return names, samples
}

// bodyRows flattens an engine list reply into name→value rows using the
// header row, so column positions do not have to be hard-coded.
func bodyRows(resp *client.Response) []map[string]string {
	body, ok := resp.Body.([]interface{})
	if !ok || len(body) < 2 {
		return nil
	}

	header, ok := body[0].([]interface{})
	if !ok {
		return nil
	}
	fields := make([]string, len(header))
	for i, h := range header {
		pair, ok := h.([]interface{})
		if !ok || len(pair) == 0 {
			return nil
		}
		name, _ := pair[0].(string)
		fields[i] = name
	}

	rows := make([]map[string]string, 0, len(body)-1)
	for _, rawRow := range body[1:] {
		cells, ok := rawRow.([]interface{})
		if !ok {
			continue
		}
		row := make(map[string]string, len(fields))
		for i, cell := range cells {
			if i >= len(fields) {
				break
			}
			if s, ok := cell.(string); ok {
				row[fields[i]] = s
			}
		}
		rows = append(rows, row)
	}

	return rows
}
