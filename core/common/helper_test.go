package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveDuplicatesKeepsFirst(t *testing.T) {
	type item struct{ key, val string }
	in := []item{{"a", "1"}, {"b", "2"}, {"a", "3"}}
	out := RemoveDuplicates(in, func(i item) string { return i.key })
	assert.Equal(t, []item{{"a", "1"}, {"b", "2"}}, out)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "基金风", TruncateRunes("基金风险分析", 3))
	assert.Equal(t, "short", TruncateRunes("short", 600))
	assert.Equal(t, "keep", TruncateRunes("keep", 0))
}
