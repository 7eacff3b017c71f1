package record

import "strings"

// TagKind classifies an entry based on its tag
type TagKind int

const (
	// TagData marks a plain data record destined for the store path
	TagData TagKind = iota
	// TagCommand marks an explicit engine command carried as a record
	TagCommand
)

// Classifier decides whether an entry is data or an explicit command.
// The reserved prefix comes from configuration; the remainder of a
// matching tag is the command name.
type Classifier struct {
	prefix string
}

// NewClassifier creates a classifier for the given reserved prefix
func NewClassifier(prefix string) *Classifier {
	return &Classifier{prefix: prefix}
}

// Classify returns the tag kind and, for commands, the command name.
// A tag that equals the bare prefix yields an empty command name; the
// caller treats that as data since there is no command to run.
func (c *Classifier) Classify(tag string) (TagKind, string) {
	if !strings.HasPrefix(tag, c.prefix) {
		return TagData, ""
	}
	name := tag[len(c.prefix):]
	if name == "" {
		return TagData, ""
	}
	return TagCommand, name
}
