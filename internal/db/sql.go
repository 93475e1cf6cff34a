package db

import (
	"fmt"
	"regexp"
	"strings"
)

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteSnowflake leaves plain identifiers unquoted so Snowflake folds them to
// upper case as it would for hand-written DDL. Anything else is quoted.
func QuoteSnowflake(name string) string {
	if bareIdent.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Qualify joins namespace parts and a table name into a dotted path.
func Qualify(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteSnowflake(p)
	}
	return strings.Join(quoted, ".")
}

// CreateTableSQL renders an idempotent CREATE TABLE for the qualified table,
// preserving the column order of def.
func CreateTableSQL(qualified string, def TableDef) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = fmt.Sprintf("%s %s", QuoteSnowflake(c.Name), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(cols, ", "))
}

// NewInsertStatement renders the insert prefix and one placeholder group for
// the qualified table.
func NewInsertStatement(qualified string, columns *ColumnSet) InsertStatement {
	names := make([]string, columns.Len())
	marks := make([]string, columns.Len())
	for i, n := range columns.names {
		names[i] = QuoteSnowflake(n)
		marks[i] = "?"
	}
	return InsertStatement{
		Table:   qualified,
		columns: columns,
		prefix:  fmt.Sprintf("INSERT INTO %s (%s) VALUES ", qualified, strings.Join(names, ", ")),
		group:   "(" + strings.Join(marks, ", ") + ")",
	}
}
