// Package fs emulates a hierarchical filesystem on top of a flat object
// store: directories, recursive listing, rename, recursive delete, and
// threshold-based large-object transfer. The store owns all durable state;
// everything here is a derived, point-in-time view.
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/damacus/bucketfs/internal/config"
	"github.com/damacus/bucketfs/internal/metrics"
	"github.com/damacus/bucketfs/internal/store"
	"github.com/damacus/bucketfs/internal/transfer"
)

// FileSystem presents hierarchical semantics over a single bucket. All
// operations run synchronously on the calling goroutine and may issue
// several sequential backend calls; there is no operation-level locking, so
// correctness under concurrent writers on overlapping paths is best-effort.
type FileSystem struct {
	client store.Client
	instr  *metrics.Instrumentation

	pool      *transfer.Pool
	transfers *transfer.Manager

	workingDir string

	maxKeys           int
	blockSize         int64
	readahead         int64
	fastUpload        bool
	multiObjectDelete bool
	sseAlgorithm      string

	closed atomic.Bool
}

// batchCeiling is the maximum number of keys a single batch delete call may
// carry.
const batchCeiling = 1000

// New builds a FileSystem over the given client. It verifies the bucket is
// reachable and, when configured, sweeps stale multipart uploads before
// returning.
func New(ctx context.Context, client store.Client, cfg config.Config, instr *metrics.Instrumentation) (*FileSystem, error) {
	pool := transfer.NewPool("transfer-shared", cfg.Pool.MaxThreads, cfg.Pool.MaxQueued)
	f := &FileSystem{
		client:            client,
		instr:             instr,
		pool:              pool,
		transfers:         transfer.NewManager(client, pool, cfg.PartSize, cfg.MultipartThreshold, instr),
		workingDir:        "/user",
		maxKeys:           cfg.MaxPagingKeys,
		blockSize:         cfg.BlockSize,
		readahead:         cfg.Readahead,
		fastUpload:        cfg.FastUpload,
		multiObjectDelete: cfg.MultiObjectDelete,
		sseAlgorithm:      cfg.SSEAlgorithm,
	}

	exists, err := client.BucketExists(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		pool.Close()
		return nil, fmt.Errorf("bucket does not exist: %w", ErrNotFound)
	}

	if cfg.PurgeMultipart {
		age := time.Duration(cfg.PurgeMultipartAgeSec) * time.Second
		n, err := f.transfers.SweepStaleUploads(ctx, age)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("purge stale multipart uploads: %w", err)
		}
		if n > 0 {
			slog.Info("aborted stale multipart uploads", slog.Int("count", n))
		}
	}
	return f, nil
}

// SetWorkingDirectory changes the directory relative paths resolve against.
func (f *FileSystem) SetWorkingDirectory(p string) {
	if isRoot(p) {
		f.workingDir = Separator
		return
	}
	f.workingDir = Separator + f.pathToKey(p)
}

// WorkingDirectory returns the current working directory.
func (f *FileSystem) WorkingDirectory() string { return f.workingDir }

// Close tears down the shared worker pool. Idempotent; it does not block on
// transfers that have already completed.
func (f *FileSystem) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.pool.Close()
	return nil
}

// Stat resolves a path to its status. The probe order is: exact key, key
// with a trailing separator, then a one-item listing under the key. Only a
// literal not-found continues to the next probe; rejections and backend
// errors abort immediately.
func (f *FileSystem) Stat(ctx context.Context, path string) (FileStatus, error) {
	key := f.pathToKey(path)
	slog.Debug("stat", slog.String("path", path), slog.String("key", key))

	if key != "" {
		meta, err := f.client.HeadObject(ctx, key)
		f.instr.ReadOps(1)
		switch {
		case err == nil:
			if objectRepresentsDirectory(key, meta.Size) {
				return newDirStatus(path, true), nil
			}
			return f.newFileStatus(path, meta.Size, meta.LastModified), nil
		case !store.IsNotFound(err):
			return FileStatus{}, f.escalate("stat", key, err)
		}

		if dk := dirKey(key); dk != key {
			meta, err := f.client.HeadObject(ctx, dk)
			f.instr.ReadOps(1)
			switch {
			case err == nil:
				if objectRepresentsDirectory(dk, meta.Size) {
					return newDirStatus(path, true), nil
				}
				// A non-empty object behind a trailing-separator key is not
				// something this layer writes; report it as a file anyway.
				slog.Warn("non-empty object found at directory key",
					slog.String("key", dk), slog.Int64("size", meta.Size))
				return f.newFileStatus(path, meta.Size, meta.LastModified), nil
			case !store.IsNotFound(err):
				return FileStatus{}, f.escalate("stat", dk, err)
			}
		}
	}

	prefix := dirKey(key)
	page, err := f.client.ListObjects(ctx, prefix, Separator, "", 1)
	f.instr.ReadOps(1)
	if err != nil && !store.IsNotFound(err) {
		return FileStatus{}, f.escalate("stat", prefix, err)
	}
	if err == nil && (len(page.Objects) > 0 || len(page.CommonPrefixes) > 0) {
		return newDirStatus(path, false), nil
	}
	if key == "" {
		return newDirStatus(path, true), nil
	}

	return FileStatus{}, fmt.Errorf("%s: %w", path, ErrNotFound)
}

// Exists reports whether a path resolves at all.
func (f *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := f.Stat(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mkdirs creates a directory and is a no-op if it already exists, matching
// `mkdir -p`. A file at the path or any ancestor fails with
// ErrAlreadyExists.
func (f *FileSystem) Mkdirs(ctx context.Context, path string) (bool, error) {
	slog.Debug("mkdirs", slog.String("path", path))

	status, err := f.Stat(ctx, path)
	if err == nil {
		if status.IsDir {
			return true, nil
		}
		return false, fmt.Errorf("path is a file: %s: %w", path, ErrAlreadyExists)
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	for p := parentPath(path); !isRoot(p); p = parentPath(p) {
		st, err := f.Stat(ctx, p)
		if errors.Is(err, ErrNotFound) {
			f.instr.ErrorIgnored()
			continue
		}
		if err != nil {
			return false, err
		}
		if st.IsFile() {
			return false, fmt.Errorf("ancestor is a file: %s: %w", p, ErrAlreadyExists)
		}
	}

	if err := f.createMarker(ctx, f.pathToKey(path)); err != nil {
		return false, err
	}
	// The new marker is itself a child of every ancestor; their markers are
	// now stale.
	f.ensureParentNotMarked(ctx, path)
	return true, nil
}

// escalate logs rejections before propagation; backend errors pass through
// untouched.
func (f *FileSystem) escalate(op, key string, err error) error {
	var rejected *store.RejectedError
	if errors.As(err, &rejected) {
		slog.Error("store rejected request",
			slog.String("op", op), slog.String("key", key),
			slog.String("code", rejected.Code), slog.Int("status", rejected.StatusCode))
	}
	return err
}

// objectRepresentsDirectory reports whether a key/size pair is a directory
// marker: zero length with a trailing separator.
func objectRepresentsDirectory(key string, size int64) bool {
	return key != "" && key[len(key)-1] == '/' && size == 0
}
