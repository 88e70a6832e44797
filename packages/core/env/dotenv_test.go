package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{"simple", "TENT_REMOTE_SERVER=https://alice.example", map[string]string{"TENT_REMOTE_SERVER": "https://alice.example"}},
		{"double quoted", `TENT_MAC_KEY="a key with spaces"`, map[string]string{"TENT_MAC_KEY": "a key with spaces"}},
		{"single quoted", `TENT_MAC_KEY='a key'`, map[string]string{"TENT_MAC_KEY": "a key"}},
		{"export prefix", "export TENT_MAC_KEY_ID=u123", map[string]string{"TENT_MAC_KEY_ID": "u123"}},
		{"comments and blanks", "# comment\n\nA=1\n", map[string]string{"A": "1"}},
		{"inline comment", "A=1 # note", map[string]string{"A": "1"}},
		{"equals in value", "TENT_DATABASE_URL=sqlite3://file.db?_fk=1", map[string]string{"TENT_DATABASE_URL": "sqlite3://file.db?_fk=1"}},
		{"whitespace trimmed", "  A  =  b  ", map[string]string{"A": "b"}},
		{"empty", "", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := LoadDotEnv(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoadDotEnvFileNotFound(t *testing.T) {
	_, err := LoadDotEnv("/nonexistent/path/.env")
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TENTSPEC_TEST_A=env\nTENTSPEC_TEST_B=env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("TENTSPEC_TEST_B=local\n"), 0o644))
	t.Setenv("TENTSPEC_TEST_A", "process")

	vars, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "local", vars["TENTSPEC_TEST_B"])
	assert.Equal(t, "process", os.Getenv("TENTSPEC_TEST_A"))
	assert.Equal(t, "local", os.Getenv("TENTSPEC_TEST_B"))
	os.Unsetenv("TENTSPEC_TEST_B")
}

func TestLoadMissingFiles(t *testing.T) {
	vars, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestWithPrefix(t *testing.T) {
	t.Setenv("TENTSPEC_PFX_SERVER", "https://bob.example")
	got := WithPrefix("TENTSPEC_PFX_")
	assert.Equal(t, "https://bob.example", got["SERVER"])
}

func TestExpand(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "HOST" {
			return "alice.example", true
		}
		return "", false
	}
	assert.Equal(t, "https://alice.example/tent", Expand("https://${HOST}/tent", lookup))
	assert.Equal(t, "x", Expand("x${MISSING}", lookup))
}
