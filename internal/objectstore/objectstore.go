// Package objectstore stores and retrieves chapter artifacts in an
// S3-compatible object store, addressed by a randomly generated key. It
// also supports listing objects in a bucket, used by the Patreon-case
// email-ingest providers to enumerate raw messages.
package objectstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// keyLength is the length of the random alphanumeric portion of an
// object key, before the ".mobi" suffix.
const keyLength = 30

// Location identifies a stored artifact by bucket and key.
type Location struct {
	Bucket string
	Key    string
}

// Store wraps an S3-compatible client bound to a single default bucket
// (the chapter-artifact bucket). Credentials and endpoint are read from
// configuration at construction time.
type Store struct {
	client        *minio.Client
	defaultBucket string
}

// Config configures a Store.
type Config struct {
	Endpoint string
	Key      string
	Secret   string
	Bucket   string
	UseSSL   bool
}

// New constructs a Store from the given configuration.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Key, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}
	return &Store{client: client, defaultBucket: cfg.Bucket}, nil
}

// Store writes bytes to the default bucket under a freshly generated
// random key (30-character alphanumeric string plus ".mobi")
// and returns the location written to.
func (s *Store) Store(ctx context.Context, data []byte) (Location, error) {
	key, err := newKey()
	if err != nil {
		return Location{}, fmt.Errorf("objectstore: generate key: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.defaultBucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/x-mobipocket-ebook"})
	if err != nil {
		return Location{}, fmt.Errorf("objectstore: put %s/%s: %w", s.defaultBucket, key, err)
	}

	return Location{Bucket: s.defaultBucket, Key: key}, nil
}

// Fetch reads the full body stored at loc.
func (s *Store) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", loc.Bucket, loc.Key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return data, nil
}

// ObjectInfo is the subset of S3 object metadata the email-ingest
// providers need: enough to read the object and to use its storage
// timestamp as the message's publish time.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// ListObjects lists every object present in bucket. Used by email-ingest
// providers to enumerate raw RFC-5322 messages.
func (s *Store) ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objectstore: list %s: %w", bucket, obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, LastModified: obj.LastModified})
	}
	return objects, nil
}

// FetchRaw reads the full body of an arbitrary bucket/key pair, used
// alongside ListObjects for the email-ingest bucket (which is
// independent of the default chapter-artifact bucket).
func (s *Store) FetchRaw(ctx context.Context, bucket, key string) ([]byte, error) {
	return s.Fetch(ctx, Location{Bucket: bucket, Key: key})
}

// newKey generates a 30-character alphanumeric key with a ".mobi" suffix.
func newKey() (string, error) {
	buf := make([]byte, keyLength)
	alphabetLen := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf) + ".mobi", nil
}
