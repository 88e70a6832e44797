package env

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Files are the dotenv files Load reads, lowest precedence first.
var Files = []string{".env", ".env.local"}

// LoadDotEnv parses a .env file and returns key-value pairs.
// Supports KEY=value, KEY="quoted value", KEY='single quoted', export
// prefixes and # comments. Nothing is exported.
func LoadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return result, nil
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}
	if i := strings.Index(value, " #"); i >= 0 {
		return strings.TrimSpace(value[:i])
	}
	return value
}

// Load reads Files from dir, later files overriding earlier ones, and
// exports every variable not already set. Missing files are skipped.
func Load(dir string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, name := range Files {
		vars, err := LoadDotEnv(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	Export(merged)
	return merged, nil
}

// Export sets each variable in the process environment unless it is
// already set.
func Export(vars map[string]string) {
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); !ok {
			_ = os.Setenv(k, v)
		}
	}
}

// WithPrefix returns process environment variables starting with prefix,
// keyed without it.
func WithPrefix(prefix string) map[string]string {
	result := make(map[string]string)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(key, prefix) || key == prefix {
			continue
		}
		result[strings.TrimPrefix(key, prefix)] = value
	}
	return result
}

// Expand replaces ${VAR} and $VAR using lookup. Unknown variables expand
// to the empty string, as os.ExpandEnv does.
func Expand(s string, lookup func(string) (string, bool)) string {
	return os.Expand(s, func(name string) string {
		v, _ := lookup(name)
		return v
	})
}
