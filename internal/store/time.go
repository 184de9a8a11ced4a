package store

import (
	"database/sql"
	"strings"
	"time"

	"credvault/internal/models"
)

// dbTimeLayout is fixed-width so stored timestamps sort lexically.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbFormatTime(*t)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return models.FormatDate(*t)
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := dbParseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseNullDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := models.ParseDate(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
