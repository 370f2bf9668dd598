package dbx

import (
	"database/sql"
	"encoding/json"
)

// NullString maps "" to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullJSON maps an empty document to SQL NULL and anything else to its text,
// which PostgreSQL casts into json/jsonb columns.
func NullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// RawJSON converts a scanned json/jsonb column into json.RawMessage,
// keeping NULL as nil.
func RawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
