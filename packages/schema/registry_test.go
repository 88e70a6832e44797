package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func TestDefault_LoadsEmbeddedSchemas(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	for _, name := range []string{"app", "data", "error", "post", "post_meta", "post_status", "posts_feed"} {
		assert.True(t, r.Has(name), name)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	_, err = r.Validate("missing", value.Null{})
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestRegistry_Validate(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	valid, err := value.ParseString(`{"text": "hello"}`)
	require.NoError(t, err)
	violations, err := r.Validate("post_status", valid)
	require.NoError(t, err)
	assert.Empty(t, violations)

	invalid, err := value.ParseString(`{"location": {"latitude": "north"}}`)
	require.NoError(t, err)
	violations, err = r.Validate("post_status", invalid)
	require.NoError(t, err)

	pointers := make([]string, 0, len(violations))
	for _, v := range violations {
		pointers = append(pointers, v.Pointer)
	}
	assert.Contains(t, pointers, "/text")
	assert.Contains(t, pointers, "/location/latitude")
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "group.yaml"), []byte("type: object\nrequired: [name]\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))
	assert.Equal(t, []string{"group"}, r.Names())

	violations, err := r.Validate("group", value.NewObject())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "/name", violations[0].Pointer)
	assert.Equal(t, "required", violations[0].Type)
}

func TestRegistry_RejectsInvalidSchema(t *testing.T) {
	r := NewRegistry()
	err := r.LoadYAML("broken", []byte("type: 12"))
	assert.Error(t, err)
}

func TestCombinator(t *testing.T) {
	assert.True(t, Combinator("number_any_of"))
	assert.False(t, Combinator("required"))
}
