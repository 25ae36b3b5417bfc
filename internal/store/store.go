// Package store abstracts the flat object store underneath the filesystem
// emulation. The filesystem layer only ever talks to the Client interface;
// the MinIO-backed implementation lives in minio.go.
package store

import (
	"context"
	"io"
	"time"
)

// ObjectMeta holds the metadata the emulation layer cares about for a single
// object, whether it came from a HEAD call or a listing page.
type ObjectMeta struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time

	// Fields below are only populated by HeadObject.
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	CacheControl       string
	UserMetadata       map[string]string
}

// ListPage is one page of a prefix/delimiter listing.
type ListPage struct {
	Objects        []ObjectMeta
	CommonPrefixes []string
	IsTruncated    bool
	// NextContinuationToken is opaque; pass it back verbatim to fetch the
	// next page when IsTruncated is set.
	NextContinuationToken string
}

// PutOptions carries the metadata applied to uploaded or copied objects.
// Only non-empty fields are sent; the store recomputes everything else.
type PutOptions struct {
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	CacheControl       string
	UserMetadata       map[string]string
	SSEAlgorithm       string
}

// Part identifies one completed part of a multipart upload.
type Part struct {
	Number int
	ETag   string
}

// Client is the full primitive surface the emulation layer needs from an
// object store. Implementations must be safe for concurrent use: the
// transfer subsystem uploads parts from multiple goroutines against a single
// shared client.
type Client interface {
	// HeadObject fetches metadata for exactly the given key. Returns
	// ErrNotFound when the key does not exist.
	HeadObject(ctx context.Context, key string) (ObjectMeta, error)

	// ListObjects returns one page of keys under prefix. An empty delimiter
	// lists recursively; "/" groups one level into CommonPrefixes.
	ListObjects(ctx context.Context, prefix, delimiter, continuationToken string, maxKeys int) (ListPage, error)

	// GetObject streams size bytes starting at offset. size < 0 reads to the
	// end of the object.
	GetObject(ctx context.Context, key string, offset, size int64) (io.ReadCloser, error)

	PutObject(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error

	// CopyObject performs a server-side copy within the bucket.
	CopyObject(ctx context.Context, srcKey, dstKey string, opts PutOptions) error

	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes up to the store's batch ceiling of keys in a
	// single call. Partial failures are reported as an error.
	DeleteObjects(ctx context.Context, keys []string) error

	NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (uploadID string, err error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader, size int64) (Part, error)
	// UploadPartCopy server-side copies [offset, offset+size) of srcKey into
	// a part of an in-flight multipart upload for dstKey.
	UploadPartCopy(ctx context.Context, srcKey, dstKey, uploadID string, partNumber int, offset, size int64) (Part, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// AbortStaleMultipartUploads aborts every in-flight multipart upload
	// initiated before the given time and reports how many were aborted.
	AbortStaleMultipartUploads(ctx context.Context, before time.Time) (int, error)

	// BucketExists reports whether the configured bucket is reachable.
	BucketExists(ctx context.Context) (bool, error)
}
