package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateIdsAcrossGroups(t *testing.T) {
	sources := []ComponentSpec{{Id: "a", Type: "file"}, {Id: "b", Type: "file"}}
	sinks := []ComponentSpec{{Id: "a", Type: "http"}}

	dups := DuplicateIds(sources, sinks)
	assert.ElementsMatch(t, []string{"a"}, dups)
}

func TestDuplicateIdsIgnoresBlank(t *testing.T) {
	specs := []ComponentSpec{{Id: "", Type: "file"}, {Id: "", Type: "file"}}
	assert.Empty(t, DuplicateIds(specs))
}

func TestDuplicateIdsNoneWhenAllUnique(t *testing.T) {
	specs := []ComponentSpec{{Id: "a", Type: "file"}, {Id: "b", Type: "file"}}
	assert.Empty(t, DuplicateIds(specs))
}
