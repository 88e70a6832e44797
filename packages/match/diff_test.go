package match

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func mustParse(t *testing.T, doc string) value.Value {
	t.Helper()
	v, err := value.ParseString(doc)
	require.NoError(t, err)
	return v
}

func TestDiff_PartialObject(t *testing.T) {
	actual := mustParse(t, `{"name": "x", "extra": "y"}`)

	entries := Diff(From(map[string]any{"name": "x"}), actual, true)
	require.Len(t, entries, 1)
	assert.Equal(t, "/name", entries[0].Path)
	assert.True(t, *Valid(entries))

	entries = Diff(From(map[string]any{"extra": "z"}), actual, true)
	require.Len(t, entries, 1)
	assert.Equal(t, "/extra", entries[0].Path)
	assert.Equal(t, "z", entries[0].Expected)
	assert.Equal(t, "y", entries[0].Actual)
	assert.False(t, *Valid(entries))
}

func TestDiff_AbsentSentinel(t *testing.T) {
	expected := Object(F("permissions", Absent))

	entries := Diff(expected, mustParse(t, `{}`), true)
	assert.True(t, *Valid(entries))

	entries = Diff(expected, mustParse(t, `{"permissions": {}}`), true)
	assert.False(t, *Valid(entries))
	assert.Equal(t, "/permissions", entries[0].Path)
	assert.Equal(t, "<absent>", entries[0].Expected)
	assert.Equal(t, map[string]any{}, entries[0].Actual)
}

func TestDiff_PresentSentinel(t *testing.T) {
	expected := Object(F("id", Present))

	assert.True(t, *Valid(Diff(expected, mustParse(t, `{"id": null}`), true)))
	assert.False(t, *Valid(Diff(expected, mustParse(t, `{"other": 1}`), true)))
}

func TestDiff_PartialArrayByIndex(t *testing.T) {
	actual := mustParse(t, `[{"type": "a"}, {"type": "b"}]`)

	entries := Diff(Array(map[string]any{"type": "a"}), actual, true)
	assert.True(t, *Valid(entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "/0/type", entries[0].Path)

	entries = Diff(Array(map[string]any{"type": "b"}), actual, true)
	assert.False(t, *Valid(entries))

	entries = Diff(Array(Present, Present, Present), actual, true)
	assert.False(t, *Valid(entries))
	assert.Equal(t, "/2", entries[2].Path)
}

func TestDiff_Regex(t *testing.T) {
	expected := Object(F("version", map[string]any{"id": regexp.MustCompile(`\Asha512t256-`)}))

	assert.True(t, *Valid(Diff(expected, mustParse(t, `{"version": {"id": "sha512t256-abc"}}`), true)))
	assert.False(t, *Valid(Diff(expected, mustParse(t, `{"version": {"id": "md5-abc"}}`), true)))
	assert.False(t, *Valid(Diff(expected, mustParse(t, `{"version": {"id": 12}}`), true)))
}

func TestDiff_TypeMismatch(t *testing.T) {
	entries := Diff(Object(F("post", map[string]any{"id": "x"})), mustParse(t, `{"post": "nope"}`), true)
	require.Len(t, entries, 1)
	assert.Equal(t, "/post", entries[0].Path)
	assert.False(t, entries[0].Passed())
	assert.Contains(t, entries[0].Message, "got string")
}

func TestDiff_MissingRoot(t *testing.T) {
	entries := Diff(Exact("hello world"), nil, false)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Actual)
	assert.False(t, *entries[0].Valid)
}

func TestDiffAt_EscapesKeys(t *testing.T) {
	actual := mustParse(t, `{"https://a.example": {"name": "A"}}`)
	entries := DiffAt("/profiles", From(map[string]any{"https://a.example": map[string]any{"name": "B"}}), actual, true)
	require.Len(t, entries, 1)
	assert.Equal(t, "/profiles/https:~1~1a.example/name", entries[0].Path)
}

func TestFields_Delete(t *testing.T) {
	f := From(map[string]any{"a": 1, "b": 2}).(*Fields)
	f.Delete("a")
	assert.Equal(t, []string{"b"}, f.Keys())
}

func TestRollup(t *testing.T) {
	tests := []struct {
		name   string
		in     []*bool
		expect *bool
	}{
		{"empty", nil, Bool(true)},
		{"all true", []*bool{Bool(true), Bool(true)}, Bool(true)},
		{"nil preserved", []*bool{Bool(true), nil}, nil},
		{"false wins over nil", []*bool{nil, Bool(false)}, Bool(false)},
		{"false wins first", []*bool{Bool(false), nil, Bool(true)}, Bool(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Rollup(tt.in...))
		})
	}
}
