package recordstore

import (
	"reflect"
	"strings"

	"github.com/uptrace/bun/dialect"
)

// Model is implemented by the types a Store is bound to. Methods are called
// on the zero value of the type, so they must not depend on its fields.
type Model interface {
	// TableSchema returns an idempotent CREATE TABLE statement for table.
	TableSchema(table string, d dialect.Name) string
	// Coercers declares the per-column conversions applied on read.
	Coercers() Coercers
}

// Named lets a model pick its short name instead of its Go type name.
type Named interface {
	ModelName() string
}

// shortName is the lowercased name of M. It names the table, the cache
// group and every hook of the store, so renaming the type orphans all three.
func shortName[M Model]() string {
	var m M
	if n, ok := any(m).(Named); ok {
		if name := n.ModelName(); name != "" {
			return strings.ToLower(name)
		}
	}

	t := reflect.TypeFor[M]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}
