package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// MinioOptions configures the MinIO-backed Client.
type MinioOptions struct {
	Endpoint    string
	Bucket      string
	Region      string
	Secure      bool
	PathStyle   bool
	Credentials *credentials.Credentials

	// Transport carries proxy and timeout configuration; nil uses the
	// SDK default.
	Transport http.RoundTripper

	// MaxRetries caps the SDK's internal retry loop. Zero keeps the SDK
	// default.
	MaxRetries int

	// UserAgentPrefix is prepended to the SDK's own user agent string.
	UserAgentPrefix string
}

// minioStore implements Client on top of the minio-go Core API.
type minioStore struct {
	core   *minio.Core
	bucket string
}

// NewMinio builds a Client talking to a single bucket on a MinIO/S3
// compatible endpoint.
func NewMinio(opts MinioOptions) (Client, error) {
	lookup := minio.BucketLookupDNS
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}
	mopts := &minio.Options{
		Creds:        opts.Credentials,
		Secure:       opts.Secure,
		Region:       opts.Region,
		Transport:    opts.Transport,
		BucketLookup: lookup,
	}
	core, err := minio.NewCore(opts.Endpoint, mopts)
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	if opts.MaxRetries > 0 {
		minio.MaxRetry = opts.MaxRetries
	}
	if opts.UserAgentPrefix != "" {
		core.SetAppInfo(opts.UserAgentPrefix, "")
	}
	return &minioStore{core: core, bucket: opts.Bucket}, nil
}

func (s *minioStore) HeadObject(ctx context.Context, key string) (ObjectMeta, error) {
	info, err := s.core.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectMeta{}, s.mapErr("head", key, err)
	}
	meta := ObjectMeta{
		Key:                info.Key,
		Size:               info.Size,
		ETag:               info.ETag,
		LastModified:       info.LastModified,
		ContentType:        info.ContentType,
		ContentEncoding:    info.Metadata.Get("Content-Encoding"),
		ContentDisposition: info.Metadata.Get("Content-Disposition"),
		CacheControl:       info.Metadata.Get("Cache-Control"),
	}
	if len(info.UserMetadata) > 0 {
		meta.UserMetadata = make(map[string]string, len(info.UserMetadata))
		for k, v := range info.UserMetadata {
			meta.UserMetadata[k] = v
		}
	}
	return meta, nil
}

func (s *minioStore) ListObjects(ctx context.Context, prefix, delimiter, continuationToken string, maxKeys int) (ListPage, error) {
	res, err := s.core.ListObjectsV2(s.bucket, prefix, "", continuationToken, delimiter, maxKeys)
	if err != nil {
		return ListPage{}, s.mapErr("list", prefix, err)
	}
	page := ListPage{
		IsTruncated:           res.IsTruncated,
		NextContinuationToken: res.NextContinuationToken,
	}
	for _, obj := range res.Contents {
		page.Objects = append(page.Objects, ObjectMeta{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	for _, cp := range res.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, cp.Prefix)
	}
	return page, nil
}

func (s *minioStore) GetObject(ctx context.Context, key string, offset, size int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 || size > 0 {
		end := int64(0)
		if size > 0 {
			end = offset + size - 1
		}
		if err := opts.SetRange(offset, end); err != nil {
			return nil, &BackendError{Op: "get", Key: key, Err: err}
		}
	}
	rc, _, _, err := s.core.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, s.mapErr("get", key, err)
	}
	return rc, nil
}

func (s *minioStore) PutObject(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, r, size, putObjectOptions(opts))
	if err != nil {
		return s.mapErr("put", key, err)
	}
	return nil
}

func (s *minioStore) CopyObject(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	_, err := s.core.CopyObject(ctx, s.bucket, srcKey, s.bucket, dstKey,
		copyMetadata(opts), minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
		putObjectOptions(opts))
	if err != nil {
		return s.mapErr("copy", dstKey, err)
	}
	return nil
}

func (s *minioStore) DeleteObject(ctx context.Context, key string) error {
	if err := s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapErr("delete", key, err)
	}
	return nil
}

func (s *minioStore) DeleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	var failed int
	var firstErr error
	for roe := range s.core.Client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if roe.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = s.mapErr("batch delete", roe.ObjectName, roe.Err)
			}
		}
	}
	if firstErr != nil {
		slog.Error("batch delete partially failed",
			slog.Int("failed", failed), slog.Int("requested", len(keys)))
		return firstErr
	}
	return nil
}

func (s *minioStore) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, putObjectOptions(opts))
	if err != nil {
		return "", s.mapErr("create multipart", key, err)
	}
	return uploadID, nil
}

func (s *minioStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader, size int64) (Part, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, partNumber, r, size, minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, s.mapErr("upload part", key, err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

func (s *minioStore) UploadPartCopy(ctx context.Context, srcKey, dstKey, uploadID string, partNumber int, offset, size int64) (Part, error) {
	part, err := s.core.CopyObjectPart(ctx, s.bucket, srcKey, s.bucket, dstKey,
		uploadID, partNumber, offset, size, nil)
	if err != nil {
		return Part{}, s.mapErr("copy part", dstKey, err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

func (s *minioStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{PartNumber: p.Number, ETag: p.ETag})
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return s.mapErr("complete multipart", key, err)
	}
	return nil
}

func (s *minioStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); err != nil {
		return s.mapErr("abort multipart", key, err)
	}
	return nil
}

func (s *minioStore) AbortStaleMultipartUploads(ctx context.Context, before time.Time) (int, error) {
	aborted := 0
	keyMarker, uploadIDMarker := "", ""
	for {
		res, err := s.core.ListMultipartUploads(ctx, s.bucket, "", keyMarker, uploadIDMarker, "", 1000)
		if err != nil {
			return aborted, s.mapErr("list multipart", "", err)
		}
		for _, up := range res.Uploads {
			if !up.Initiated.Before(before) {
				continue
			}
			if err := s.core.AbortMultipartUpload(ctx, s.bucket, up.Key, up.UploadID); err != nil {
				return aborted, s.mapErr("abort multipart", up.Key, err)
			}
			aborted++
		}
		if !res.IsTruncated {
			return aborted, nil
		}
		keyMarker = res.NextKeyMarker
		uploadIDMarker = res.NextUploadIDMarker
	}
}

func (s *minioStore) BucketExists(ctx context.Context) (bool, error) {
	exists, err := s.core.Client.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, s.mapErr("bucket exists", s.bucket, err)
	}
	return exists, nil
}

func putObjectOptions(opts PutOptions) minio.PutObjectOptions {
	po := minio.PutObjectOptions{
		ContentType:        opts.ContentType,
		ContentEncoding:    opts.ContentEncoding,
		ContentDisposition: opts.ContentDisposition,
		CacheControl:       opts.CacheControl,
		UserMetadata:       opts.UserMetadata,
	}
	if opts.SSEAlgorithm == "AES256" {
		po.ServerSideEncryption = encrypt.NewSSE()
	}
	return po
}

// copyMetadata flattens PutOptions into the replacement-metadata map a
// server-side copy sends. Only known, non-empty fields are included so the
// destination recomputes derived headers itself.
func copyMetadata(opts PutOptions) map[string]string {
	md := map[string]string{}
	if opts.ContentType != "" {
		md["Content-Type"] = opts.ContentType
	}
	if opts.ContentEncoding != "" {
		md["Content-Encoding"] = opts.ContentEncoding
	}
	if opts.ContentDisposition != "" {
		md["Content-Disposition"] = opts.ContentDisposition
	}
	if opts.CacheControl != "" {
		md["Cache-Control"] = opts.CacheControl
	}
	for k, v := range opts.UserMetadata {
		md["x-amz-meta-"+k] = v
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// mapErr translates a minio-go error into the store error taxonomy. Only a
// literal 404 (or its NoSuchKey/NoSuchBucket codes) maps to ErrNotFound;
// every other 4xx is a rejection and 5xx/transport failures are backend
// errors. The distinction governs whether metadata probing continues.
func (s *minioStore) mapErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.Code == "NoSuchKey",
		resp.Code == "NoSuchBucket":
		return fmt.Errorf("%s %q: %w", op, key, ErrNotFound)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &RejectedError{Op: op, Key: key, Code: resp.Code, StatusCode: resp.StatusCode, Err: err}
	default:
		return &BackendError{Op: op, Key: key, Err: err}
	}
}
