package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned by Update when no row matches the id.
	ErrNotFound = errors.New("row not found")

	// ErrBlobNotFound is returned by ReadBlob for unknown objects.
	ErrBlobNotFound = errors.New("blob not found")
)

// Row is a single record as exchanged with the hosted store.
type Row map[string]any

// Direction of an ordered select.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Order names the column a select is sorted by.
type Order struct {
	Column    string
	Direction Direction
}

// Store is the narrow contract of the hosted database and object storage.
// Implementations pass failures through untouched; callers decide what to do.
type Store interface {
	Select(ctx context.Context, table string, order Order) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}

// BlobReader is implemented by backends that can serve uploaded blobs back.
type BlobReader interface {
	ReadBlob(ctx context.Context, bucket, path string) ([]byte, string, error)
}

// PublicURL builds the public address of a stored object.
// Format: {base}/storage/v1/object/public/{bucket}/{path}
func PublicURL(base, bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		strings.TrimSuffix(base, "/"), url.PathEscape(bucket), escapePath(path))
}

// ParseOrder parses the "column.direction" form used in query strings.
func ParseOrder(s string) (Order, error) {
	if s == "" {
		return Order{}, nil
	}
	col, dir, _ := strings.Cut(s, ".")
	if col == "" {
		return Order{}, fmt.Errorf("invalid order %q", s)
	}
	switch dir {
	case "", "asc":
		return Order{Column: col, Direction: Ascending}, nil
	case "desc":
		return Order{Column: col, Direction: Descending}, nil
	default:
		return Order{}, fmt.Errorf("invalid order direction %q", dir)
	}
}

// Compare orders two column values. Numbers compare numerically,
// everything else by its string form; missing values sort first.
func Compare(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
