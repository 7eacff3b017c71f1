package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyData(t *testing.T) {
	c := NewClassifier("groonga.command.")

	kind, name := c.Classify("groonga.data")
	assert.Equal(t, TagData, kind)
	assert.Empty(t, name)

	kind, _ = c.Classify("nginx.access")
	assert.Equal(t, TagData, kind)
}

func TestClassifyCommand(t *testing.T) {
	c := NewClassifier("groonga.command.")

	kind, name := c.Classify("groonga.command.commit")
	assert.Equal(t, TagCommand, kind)
	assert.Equal(t, "commit", name)

	kind, name = c.Classify("groonga.command.table_create")
	assert.Equal(t, TagCommand, kind)
	assert.Equal(t, "table_create", name)
}

func TestClassifyBarePrefixIsData(t *testing.T) {
	c := NewClassifier("groonga.command.")

	kind, name := c.Classify("groonga.command.")
	assert.Equal(t, TagData, kind)
	assert.Empty(t, name)
}
