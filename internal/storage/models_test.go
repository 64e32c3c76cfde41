package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/foro/internal/remote"
)

func TestEntryRow(t *testing.T) {
	e := Entry{
		AuthorID:       "u1",
		AuthorName:     "ana@example.org",
		AuthorPhotoURL: "https://i.pravatar.cc/150?img=3",
		Content:        "hola",
		CreatedAt:      1700000000000,
	}

	row := e.Row()
	_, hasID := row[ColumnID]
	assert.False(t, hasID, "unsaved entries must not send an id")
	assert.Equal(t, "u1", row[ColumnAuthorID])
	assert.Equal(t, int64(1700000000000), row[ColumnCreatedAt])

	e.ID = "abc"
	assert.Equal(t, "abc", e.Row()[ColumnID])
}

func TestEntryFromRow(t *testing.T) {
	tests := []struct {
		name    string
		row     remote.Row
		want    Entry
		wantErr bool
	}{
		{
			name: "json decoded row",
			row: remote.Row{
				"id": "abc", "userId": "u1", "userName": "ana", "userPhoto": "p",
				"content": "hi", "createdAt": float64(100),
			},
			want: Entry{ID: "abc", AuthorID: "u1", AuthorName: "ana", AuthorPhotoURL: "p", Content: "hi", CreatedAt: 100},
		},
		{
			name: "numeric id",
			row:  remote.Row{"id": float64(42), "content": "x", "createdAt": int64(5)},
			want: Entry{ID: "42", Content: "x", CreatedAt: 5},
		},
		{
			name: "timestamp string",
			row:  remote.Row{"id": "a", "createdAt": "2024-01-01T00:00:00Z"},
			want: Entry{ID: "a", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()},
		},
		{
			name:    "missing id",
			row:     remote.Row{"content": "x"},
			wantErr: true,
		},
		{
			name:    "bad createdAt",
			row:     remote.Row{"id": "a", "createdAt": "yesterday"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EntryFromRow(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntryCreated(t *testing.T) {
	e := Entry{CreatedAt: 1500}
	assert.Equal(t, time.UnixMilli(1500), e.Created())
}
