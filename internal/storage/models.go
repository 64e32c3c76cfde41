package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pders01/foro/internal/remote"
)

// Column names of the entries table.
const (
	ColumnID         = "id"
	ColumnAuthorID   = "userId"
	ColumnAuthorName = "userName"
	ColumnPhoto      = "userPhoto"
	ColumnContent    = "content"
	ColumnCreatedAt  = "createdAt"
)

// Entry is one item posted to the forum feed.
// ID is empty until the store assigns one.
type Entry struct {
	ID             string `json:"id,omitempty"`
	AuthorID       string `json:"userId"`
	AuthorName     string `json:"userName"`
	AuthorPhotoURL string `json:"userPhoto"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"createdAt"` // unix milliseconds
}

// Created returns CreatedAt as a time.
func (e Entry) Created() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// Row converts the entry into a store row. The id is left out when unset.
func (e Entry) Row() remote.Row {
	row := remote.Row{
		ColumnAuthorID:   e.AuthorID,
		ColumnAuthorName: e.AuthorName,
		ColumnPhoto:      e.AuthorPhotoURL,
		ColumnContent:    e.Content,
		ColumnCreatedAt:  e.CreatedAt,
	}
	if e.ID != "" {
		row[ColumnID] = e.ID
	}
	return row
}

// EntryFromRow decodes a row returned by a store.
func EntryFromRow(row remote.Row) (Entry, error) {
	var e Entry
	id, err := scalarString(row[ColumnID])
	if err != nil {
		return e, fmt.Errorf("decoding %s: %w", ColumnID, err)
	}
	if id == "" {
		return e, fmt.Errorf("row has no %s", ColumnID)
	}
	e.ID = id

	e.AuthorID, _ = scalarString(row[ColumnAuthorID])
	e.AuthorName, _ = row[ColumnAuthorName].(string)
	e.AuthorPhotoURL, _ = row[ColumnPhoto].(string)
	e.Content, _ = row[ColumnContent].(string)

	created, err := millis(row[ColumnCreatedAt])
	if err != nil {
		return e, fmt.Errorf("decoding %s: %w", ColumnCreatedAt, err)
	}
	e.CreatedAt = created
	return e, nil
}

// EntriesFromRows decodes rows, keeping their order.
func EntriesFromRows(rows []remote.Row) ([]Entry, error) {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := EntryFromRow(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}

// millis accepts epoch milliseconds or an RFC 3339 timestamp.
func millis(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return 0, err
		}
		return t.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
