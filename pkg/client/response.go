package client

import (
	"github.com/grnrelay/grnrelay/pkg/errors"
	"github.com/grnrelay/grnrelay/pkg/json"
)

// Response is a decoded engine reply. The engine's envelope is a JSON
// array whose head is [return_code, start_time, elapsed] and whose tail
// is the command body.
type Response struct {
	// Code is the engine return code; zero means success
	Code int
	// Body is the decoded command body, nil when the reply carried none
	Body interface{}
	// Raw is the undecoded reply text
	Raw []byte
}

// OK reports whether the reply signalled success
func (r *Response) OK() bool {
	return r.Code == 0
}

// ParseResponse decodes an engine reply envelope
func ParseResponse(raw []byte) (*Response, error) {
	var envelope []interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "undecodable engine reply").
			WithDetail("raw", string(raw))
	}
	if len(envelope) == 0 {
		return nil, errors.New(errors.ErrorTypeProtocol, "empty engine reply envelope").
			WithDetail("raw", string(raw))
	}

	header, ok := envelope[0].([]interface{})
	if !ok || len(header) == 0 {
		return nil, errors.New(errors.ErrorTypeProtocol, "malformed engine reply header").
			WithDetail("raw", string(raw))
	}

	code, ok := header[0].(float64)
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, "missing engine return code").
			WithDetail("raw", string(raw))
	}

	resp := &Response{
		Code: int(code),
		Raw:  raw,
	}
	if len(envelope) > 1 {
		resp.Body = envelope[1]
	}

	return resp, nil
}
