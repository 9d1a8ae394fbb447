// Package archive writes raw feed snapshots to an S3 compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/smukkama/flood-forecast/internal/feed"
	"github.com/smukkama/flood-forecast/pkg/config"
)

type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(cfg config.ArchiveConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the snapshot bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PutSnapshot uploads the entries of one refresh run as CSV and returns the
// object key.
func (s *Store) PutSnapshot(ctx context.Context, runID string, fetchedAt time.Time, entries []feed.Entry) (string, error) {
	body, err := EncodeCSV(entries)
	if err != nil {
		return "", err
	}

	key := SnapshotKey(runID, fetchedAt)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return key, nil
}

// SnapshotKey lays snapshots out by UTC day.
func SnapshotKey(runID string, fetchedAt time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.csv", fetchedAt.UTC().Format("2006/01/02"), runID)
}

// EncodeCSV writes entries with one column per field seen in any entry.
// Missing fields are written as empty cells.
func EncodeCSV(entries []feed.Entry) ([]byte, error) {
	seen := make(map[string]struct{})
	for _, e := range entries {
		for k := range e.Fields {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"created_at", "entry_id"}, fields...)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, e := range entries {
		row[0] = e.CreatedAt.UTC().Format(time.RFC3339)
		row[1] = strconv.FormatInt(e.EntryID, 10)
		for i, f := range fields {
			row[i+2] = e.Fields[f]
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
