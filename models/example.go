// Package models holds the record types served by the application.
//
// ExampleModel is a template: copy it for a new table, adjust the schema and
// coercers, and register a store for it in the container.
package models

import (
	"fmt"

	"github.com/goliatone/go-broiler/recordstore"
	"github.com/uptrace/bun/dialect"
)

// ExampleModel is a row of the examplemodel table.
type ExampleModel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

var _ recordstore.Model = ExampleModel{}

// TableSchema implements recordstore.Model.
func (ExampleModel) TableSchema(table string, d dialect.Name) string {
	if d == dialect.PG {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL
)`, table)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(255) NOT NULL
)`, table)
}

// Coercers implements recordstore.Model.
func (ExampleModel) Coercers() recordstore.Coercers {
	return recordstore.Coercers{
		"id":   recordstore.ToInt,
		"name": recordstore.ToString,
	}
}

// ExampleFromRecord copies the attributes of r into an ExampleModel.
func ExampleFromRecord(r recordstore.Record) ExampleModel {
	return ExampleModel{
		ID:   r.ID(),
		Name: r.String("name"),
	}
}
