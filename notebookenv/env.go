// Package notebookenv is an explicitly non-core convenience package for
// interactive notebooks: it reads and writes a `.env` file and can
// populate a struct from the resulting process environment. No package
// under evo, retry, transport, auth, connector, chunkio, storage, cache,
// or compute imports this package — environment variables are never a
// requirement of the SDK core; a notebook collaborator opts into them
// explicitly by constructing a DotEnv.
package notebookenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// DotEnv manages a `.env`-style file: a cached, in-memory view of its
// key/value pairs, written back to disk on every Set. The zero value is
// not usable; construct with Open.
type DotEnv struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// Open reads filename (default ".env") under root, creating it if it does
// not already exist.
func Open(root, filename string) (*DotEnv, error) {
	if filename == "" {
		filename = ".env"
	}

	path := filepath.Join(root, filename)

	values, err := readDotEnv(path)
	if err != nil {
		return nil, fmt.Errorf("notebookenv: %w", err)
	}

	return &DotEnv{path: path, values: values}, nil
}

// Get returns the value stored for key, or def if it is unset.
func (d *DotEnv) Get(key, def string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.values[key]; ok {
		return v
	}

	return def
}

// Set updates key to value and persists the change immediately. A nil
// value removes the key.
func (d *DotEnv) Set(key string, value *string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("notebookenv: invalid key %q", key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if value == nil {
		delete(d.values, key)
	} else {
		d.values[key] = *value
	}

	if err := writeDotEnv(d.path, d.values); err != nil {
		return fmt.Errorf("notebookenv: %w", err)
	}

	return nil
}

// Load exports every cached key onto the process environment — without
// overwriting a variable the process already has set — and then populates
// dst (a pointer to an envconfig-tagged struct) from the result.
func (d *DotEnv) Load(prefix string, dst any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range d.values {
		if _, set := os.LookupEnv(k); set {
			continue
		}

		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("notebookenv: setting %s: %w", k, err)
		}
	}

	if err := envconfig.Process(prefix, dst); err != nil {
		return fmt.Errorf("notebookenv: %w", err)
	}

	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		if werr := os.WriteFile(path, nil, 0o600); werr != nil {
			return nil, fmt.Errorf("creating %s: %w", path, werr)
		}

		data = nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	values := make(map[string]string)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		values[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}

	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}

	return v
}

func writeDotEnv(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%q\n", k, values[k])
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}
