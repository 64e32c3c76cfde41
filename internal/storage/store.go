package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/pders01/foro/internal/remote"
)

var (
	tablesBucket = []byte("tables")
	blobsBucket  = []byte("blobs")
)

const defaultPublicBaseURL = "http://localhost:8787"

// Store keeps rows and blobs in a single bolt file. Each table and each
// storage bucket is a nested bolt bucket.
type Store struct {
	db            *bolt.DB
	publicBaseURL string
}

type blobRecord struct {
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout waits up to timeout for the file lock held by another
// foro process.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{tablesBucket, blobsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, publicBaseURL: defaultPublicBaseURL}, nil
}

// SetPublicBaseURL sets the root used to build public blob URLs.
func (s *Store) SetPublicBaseURL(base string) {
	if base != "" {
		s.publicBaseURL = base
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Select(_ context.Context, table string, order remote.Order) ([]remote.Row, error) {
	var rows []remote.Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(tablesBucket).Bucket([]byte(table))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_ []byte, v []byte) error {
			var row remote.Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("selecting from %s: %w", table, err)
	}

	if order.Column != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := remote.Compare(rows[i][order.Column], rows[j][order.Column])
			if order.Direction == remote.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	return rows, nil
}

// Insert stores row under a freshly generated id. Any id in row is ignored.
func (s *Store) Insert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	stored := make(remote.Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	id := uuid.NewString()
	stored[ColumnID] = id

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(tablesBucket).CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return decodeRow(data)
}

func (s *Store) Update(_ context.Context, table, id string, patch remote.Row) (remote.Row, error) {
	var data []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tablesBucket).Bucket([]byte(table))
		if b == nil {
			return remote.ErrNotFound
		}
		current := b.Get([]byte(id))
		if current == nil {
			return remote.ErrNotFound
		}

		var row remote.Row
		if err := json.Unmarshal(current, &row); err != nil {
			return err
		}
		for k, v := range patch {
			if k == ColumnID {
				continue
			}
			row[k] = v
		}

		var err error
		data, err = json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", table, id, err)
	}
	return decodeRow(data)
}

// UploadBlob stores data under bucket/path, replacing any existing object.
func (s *Store) UploadBlob(_ context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data cannot be empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	rec, err := json.Marshal(blobRecord{ContentType: contentType, Data: data, UpdatedAt: time.Now()})
	if err != nil {
		return "", fmt.Errorf("encoding blob: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(blobsBucket).CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(path), rec)
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	return remote.PublicURL(s.publicBaseURL, bucket, path), nil
}

func (s *Store) ReadBlob(_ context.Context, bucket, path string) ([]byte, string, error) {
	var rec blobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobsBucket).Bucket([]byte(bucket))
		if b == nil {
			return remote.ErrBlobNotFound
		}
		v := b.Get([]byte(path))
		if v == nil {
			return remote.ErrBlobNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, "", fmt.Errorf("reading %s/%s: %w", bucket, path, err)
	}
	return rec.Data, rec.ContentType, nil
}

func decodeRow(data []byte) (remote.Row, error) {
	var row remote.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return row, nil
}
