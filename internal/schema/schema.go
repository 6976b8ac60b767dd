// Package schema owns the relational contract of the output tables: the
// embedded DDL, a parser for it, validation of table frames against it and
// per-column type coercion.
package schema

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

//go:embed sql/initialize_db.sql
var initializeDDL string

// DDL returns the embedded schema script.
func DDL() string { return initializeDDL }

// Column types understood by Coerce.
const (
	TypeInteger  = "INTEGER"
	TypeReal     = "REAL"
	TypeFloat    = "FLOAT"
	TypeText     = "TEXT"
	TypeDate     = "DATE"
	TypeDatetime = "DATETIME"
)

// Column is one declared column.
type Column struct {
	Name    string
	Type    string
	NotNull bool
}

// ForeignKey is a single-column reference to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is one parsed CREATE TABLE statement.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
	ForeignKeys []ForeignKey
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Schema is the ordered set of tables declared by a DDL script.
type Schema struct {
	Tables []Table
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

var (
	createTableRe = regexp.MustCompile(`(?is)CREATE TABLE IF NOT EXISTS (\w+)\s*\((.*?)\);`)
	foreignKeyRe  = regexp.MustCompile(`(?i)FOREIGN KEY\s*\((\w+)\)\s*REFERENCES\s*(\w+)\s*\((\w+)\)`)
	primaryKeyRe  = regexp.MustCompile(`(?i)PRIMARY KEY\s*\((.*?)\)`)
)

// Default parses the embedded schema.
func Default() (*Schema, error) {
	return Parse(initializeDDL)
}

// Parse extracts tables, columns, primary keys and foreign keys from a
// script of CREATE TABLE IF NOT EXISTS statements with one column or
// constraint per line.
func Parse(ddl string) (*Schema, error) {
	matches := createTableRe.FindAllStringSubmatch(ddl, -1)
	if len(matches) == 0 {
		return nil, eris.New("schema: no CREATE TABLE statements found")
	}

	s := &Schema{}
	for _, m := range matches {
		t := Table{Name: m[1]}
		for _, line := range strings.Split(m[2], "\n") {
			line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), ","))
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			upper := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(upper, "FOREIGN KEY"):
				fk := foreignKeyRe.FindStringSubmatch(line)
				if fk == nil {
					return nil, eris.Errorf("schema: %s: malformed foreign key %q", t.Name, line)
				}
				t.ForeignKeys = append(t.ForeignKeys, ForeignKey{Column: fk[1], RefTable: fk[2], RefColumn: fk[3]})
			case strings.HasPrefix(upper, "PRIMARY KEY"):
				pk := primaryKeyRe.FindStringSubmatch(line)
				if pk == nil {
					return nil, eris.Errorf("schema: %s: malformed primary key %q", t.Name, line)
				}
				for _, col := range strings.Split(pk[1], ",") {
					t.PrimaryKeys = append(t.PrimaryKeys, strings.TrimSpace(col))
				}
			default:
				parts := strings.Fields(line)
				if len(parts) < 2 {
					return nil, eris.Errorf("schema: %s: column without type %q", t.Name, line)
				}
				t.Columns = append(t.Columns, Column{
					Name:    parts[0],
					Type:    strings.ToUpper(parts[1]),
					NotNull: strings.Contains(upper, "NOT NULL"),
				})
			}
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

// Dialect selects the SQL flavour Render emits.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

var postgresTypes = map[string]string{
	TypeInteger:  "BIGINT",
	TypeReal:     "DOUBLE PRECISION",
	TypeFloat:    "DOUBLE PRECISION",
	TypeText:     "TEXT",
	TypeDate:     "DATE",
	TypeDatetime: "TIMESTAMPTZ",
}

// Render writes the schema back out as CREATE TABLE statements for d.
func (s *Schema) Render(d Dialect) string {
	var b strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
		var lines []string
		for _, c := range t.Columns {
			typ := c.Type
			if d == Postgres {
				if mapped, ok := postgresTypes[typ]; ok {
					typ = mapped
				}
			}
			line := "    " + c.Name + " " + typ
			if c.NotNull {
				line += " NOT NULL"
			}
			lines = append(lines, line)
		}
		if len(t.PrimaryKeys) > 0 {
			lines = append(lines, "    PRIMARY KEY ("+strings.Join(t.PrimaryKeys, ", ")+")")
		}
		for _, fk := range t.ForeignKeys {
			lines = append(lines, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s(%s)", fk.Column, fk.RefTable, fk.RefColumn))
		}
		b.WriteString(strings.Join(lines, ",\n"))
		b.WriteString("\n);\n")
	}
	return b.String()
}
