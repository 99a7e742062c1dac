package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithoutFrontmatter(t *testing.T) {
	doc, err := Parse([]byte("just a note\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Meta.Len())
	assert.Equal(t, "just a note\n", string(doc.Body))

	out, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "just a note\n", string(out))
}

func TestParseKeepsOrderAndBody(t *testing.T) {
	src := "---\nzeta: 1\ntitle: Standup\nevtDate: 2024-03-10\nalpha: [x, y]\n---\n# Notes\n\nbody text\n"
	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "title", "evtDate", "alpha"}, doc.Meta.Keys())
	assert.Equal(t, "# Notes\n\nbody text\n", string(doc.Body))

	title, ok := doc.Meta.Lookup("title")
	require.True(t, ok)
	assert.Equal(t, "Standup", title)

	// timestamp-looking scalars stay strings
	date, ok := doc.Meta.Lookup("evtDate")
	require.True(t, ok)
	assert.Equal(t, "2024-03-10", date)

	alpha, ok := doc.Meta.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, []any{"x", "y"}, alpha)

	zeta, _ := doc.Meta.Lookup("zeta")
	assert.Equal(t, 1, zeta)
}

func TestUnterminatedBlockIsBody(t *testing.T) {
	src := "---\ntitle: x\nno end here\n"
	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Meta.Len())
	assert.Equal(t, src, string(doc.Body))
}

func TestEmptyBlock(t *testing.T) {
	doc, err := Parse([]byte("---\n---\nbody"))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Meta.Len())
	assert.Equal(t, "body", string(doc.Body))
}

func TestNonMappingIsRejected(t *testing.T) {
	_, err := Parse([]byte("---\n- a\n- b\n---\n"))
	assert.Error(t, err)
}

func TestSetDeleteRender(t *testing.T) {
	m := FromPairs("title", "Standup", "extra", 1)
	require.NoError(t, m.Set("title", "Retro"))
	assert.Equal(t, []string{"title", "extra"}, m.Keys())

	doc := &Document{Meta: m, Body: []byte("body\n")}
	out, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Retro\nextra: 1\n---\nbody\n", string(out))

	m.Delete("title")
	m.Delete("missing")
	assert.Equal(t, []string{"extra"}, m.Keys())
	assert.False(t, m.Has("title"))
}

func TestRoundTripPreservesUnknownNodes(t *testing.T) {
	src := "---\ntitle: Standup\ncustom:\n  nested: true\n  list: [1, 2]\nevtCat: '#evt/work'\n---\n"
	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	require.NoError(t, doc.Meta.Set("title", "Moved"))
	out, err := doc.Bytes()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "custom", "evtCat"}, again.Meta.Keys())
	custom, _ := again.Meta.Lookup("custom")
	assert.Equal(t, map[string]any{"nested": true, "list": []any{1, 2}}, custom)
	cat, _ := again.Meta.Lookup("evtCat")
	assert.Equal(t, "#evt/work", cat)
}

func TestNilMapIsEmpty(t *testing.T) {
	var m *Map
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has("x"))
	_, ok := m.Lookup("x")
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	m := FromPairs("a", 1, "b", 2)
	c := m.Clone()
	c.Delete("a")
	require.NoError(t, c.Set("z", 3))
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, []string{"b", "z"}, c.Keys())
}
