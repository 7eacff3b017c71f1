package record

import (
	"bytes"

	gojson "github.com/goccy/go-json"

	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/json"
)

// UnmarshalRecord decodes a JSON object into a Record, preserving the
// field order of the JSON text. Decoding into a plain map would lose the
// order and make encodings nondeterministic.
func UnmarshalRecord(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "undecodable record")
	}
	if delim, ok := tok.(gojson.Delim); !ok || delim != '{' {
		return nil, errors.New(errors.ErrorTypeData, "record must be a JSON object")
	}

	r := NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "undecodable record field name")
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, "record field name must be a string")
		}

		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "undecodable record field").
				WithDetail("field", key)
		}
		v, err := FromInterface(raw)
		if err != nil {
			return nil, err
		}
		r.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "unterminated record object")
	}

	return r, nil
}
