package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

func TestGenerate(t *testing.T) {
	reg := Default()

	post, err := reg.Generate("post", "status")
	require.NoError(t, err)
	typ, _ := post.Get("type")
	assert.Equal(t, value.String(StatusType), typ)

	text, ok := value.Lookup(post, "/content/text")
	require.True(t, ok)
	assert.NotEmpty(t, text)
	assert.LessOrEqual(t, len(string(text.(value.String))), 256)

	other, err := reg.Generate("post", "status")
	require.NoError(t, err)
	assert.NotSame(t, post, other)
}

func TestGenerateUnknown(t *testing.T) {
	reg := Default()

	_, err := reg.Generate("comment", "")
	assert.ErrorIs(t, err, ErrGeneratorNotFound)

	_, err = reg.Generate("post", "essay")
	assert.ErrorIs(t, err, ErrGeneratorNotFound)

	assert.False(t, reg.Has("post", "essay"))
	assert.True(t, reg.Has("profile", ""))
}

func TestCall(t *testing.T) {
	reg := Default()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"post(status_reply)", false},
		{"profile", false},
		{"app(with_auth)", false},
		{"app()", false},
		{"post(", true},
		{"nope(x)", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			doc, err := reg.Call(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrGeneratorNotFound)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, doc.Len())
		})
	}
}

func TestAppWithAuthCredentials(t *testing.T) {
	app := AppWithAuth()
	_, ok := value.Lookup(app, "/credentials/hawk_key")
	assert.True(t, ok)
	_, ok = value.Lookup(App(), "/credentials")
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	names := Default().Names()
	assert.Contains(t, names, "post(status)")
	assert.Contains(t, names, "app(with_auth)")
}
