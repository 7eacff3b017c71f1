// Package command models a single engine command and its wire encodings.
//
// A command is a name plus insertion-ordered arguments. The subprocess
// protocol carries one URI-style line per command:
//
//	/d/<name>?<key>=<percent-encoded value>&...
//
// The load command's bulk values payload is never carried in the query
// string; it is stripped and sent as newline-terminated body lines after
// the command line.
package command

import "strings"

// LoadCommand is the bulk data command whose values argument becomes a body
const LoadCommand = "load"

// ValuesArgument is the load argument carrying the JSON record array
const ValuesArgument = "values"

// Argument is a single named command argument. Argument order is
// significant: encoding follows insertion order so output is deterministic.
type Argument struct {
	Name  string
	Value string
}

// Command is a value object describing one engine request
type Command struct {
	name string
	args []Argument
}

// New creates a command with the given name and arguments
func New(name string, args ...Argument) *Command {
	return &Command{name: name, args: args}
}

// Name returns the command name
func (c *Command) Name() string { return c.name }

// Arguments returns the arguments in insertion order
func (c *Command) Arguments() []Argument { return c.args }

// Argument returns the value of a named argument
func (c *Command) Argument(name string) (string, bool) {
	for _, a := range c.args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// EncodeLine encodes the command as a single protocol line without the
// trailing newline. For load, the values argument is omitted; see Body.
func (c *Command) EncodeLine() string {
	var b strings.Builder
	b.WriteString("/d/")
	b.WriteString(c.name)

	first := true
	for _, a := range c.args {
		if c.name == LoadCommand && a.Name == ValuesArgument {
			continue
		}
		if first {
			b.WriteByte('?')
			first = false
		} else {
			b.WriteByte('&')
		}
		b.WriteString(escape(a.Name))
		b.WriteByte('=')
		b.WriteString(escape(a.Value))
	}

	return b.String()
}

// Body returns the load values payload split into body lines, one per line
// of the JSON text. Non-load commands and loads without values return nil.
func (c *Command) Body() []string {
	if c.name != LoadCommand {
		return nil
	}
	values, ok := c.Argument(ValuesArgument)
	if !ok {
		return nil
	}
	return strings.Split(values, "\n")
}

const upperhex = "0123456789ABCDEF"

// escape percent-encodes a string per RFC 3986. Space becomes %20, never +;
// the engine's line protocol does not speak the form-encoding dialect.
func escape(s string) string {
	hexCount := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			hexCount++
		}
	}
	if hexCount == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*hexCount)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if shouldEscape(ch) {
			b.WriteByte('%')
			b.WriteByte(upperhex[ch>>4])
			b.WriteByte(upperhex[ch&0x0f])
		} else {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// shouldEscape reports whether a byte is outside the RFC 3986 unreserved set
func shouldEscape(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return false
	case ch == '-' || ch == '_' || ch == '.' || ch == '~':
		return false
	}
	return true
}
