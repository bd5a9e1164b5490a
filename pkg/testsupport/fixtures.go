package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON decodes the JSON fixture at path into a T.
func LoadFixtureJSON[T any](t testing.TB, path string) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(LoadFixture(t, path), &out); err != nil {
		t.Fatalf("failed to decode JSON fixture %s: %v", path, err)
	}
	return out
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
