package mysql

import (
	"database/sql"
	"strings"
)

// nullIfBlank maps empty/whitespace strings to SQL NULL
func nullIfBlank(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}
