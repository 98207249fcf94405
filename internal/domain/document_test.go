package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDocumentKeepsOrder(t *testing.T) {
	doc, err := ParseDocument([]byte("zeta: 1\nalpha: 2\nmid: 3\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Keys())
	assert.Equal(t, 3, doc.Len())

	v, ok := doc.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = doc.Get("missing")
	assert.False(t, ok)
}

func TestParseDocumentMergeKeys(t *testing.T) {
	src := `
base: &base
  a: 1
child:
  <<: *base
  b: 2
`
	doc, err := ParseDocument([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "child"}, doc.Keys())
	child, _ := doc.Get("child")
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, child)
}

func TestParseDocumentRejectsNonMappings(t *testing.T) {
	for _, src := range []string{"- a\n", "just a string\n", "42\n"} {
		_, err := ParseDocument([]byte(src))
		assert.ErrorIs(t, err, ErrNotMapping, src)
	}
}

func TestDocumentMarshalKeepsOrder(t *testing.T) {
	doc, err := ParseDocument([]byte("b: 1\na:\n  x: y\nc: null\n"))
	require.NoError(t, err)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "b: 1\na:\n    x: y\nc: null\n", string(out))
}

func TestNormalize(t *testing.T) {
	in := map[interface{}]interface{}{
		1:     "one",
		"two": []any{map[interface{}]interface{}{true: "yes"}},
	}

	assert.Equal(t, map[string]any{
		"1":   "one",
		"two": []any{map[string]any{"true": "yes"}},
	}, Normalize(in))
}
