package fs

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/damacus/bucketfs/internal/store"
)

// Directory markers are zero-length objects whose key ends with the
// separator. The invariant: a marker exists iff the directory has no child
// objects. Repair after mutations is best-effort; failures here are logged
// and ignored because the invariant is advisory, not safety-critical.

// createMarker writes the zero-byte marker object for a directory key.
func (f *FileSystem) createMarker(ctx context.Context, key string) error {
	dk := dirKey(key)
	if dk == "" {
		return nil
	}
	err := f.client.PutObject(ctx, dk, strings.NewReader(""), 0,
		store.PutOptions{SSEAlgorithm: f.sseAlgorithm})
	if err != nil {
		return err
	}
	f.instr.WriteOps(1)
	f.instr.DirectoryCreated()
	return nil
}

// removeMarker deletes the marker object for a directory key.
func (f *FileSystem) removeMarker(ctx context.Context, key string) error {
	dk := dirKey(key)
	if dk == "" {
		return nil
	}
	if err := f.client.DeleteObject(ctx, dk); err != nil {
		return err
	}
	f.instr.WriteOps(1)
	f.instr.DirectoryDeleted()
	return nil
}

// ensureParentNotMarked clears stale markers after a successful create or
// copy at path. It walks from the immediate parent toward the root, removing
// each marker found, and stops at the first ancestor that has none: that
// ancestor's own ancestors were already marker-free when it gained children.
func (f *FileSystem) ensureParentNotMarked(ctx context.Context, path string) {
	for p := parentPath(path); !isRoot(p); p = parentPath(p) {
		key := dirKey(f.pathToKey(p))
		_, err := f.client.HeadObject(ctx, key)
		f.instr.ReadOps(1)
		if store.IsNotFound(err) {
			return
		}
		if err != nil {
			slog.Debug("marker probe failed during cleanup",
				slog.String("key", key), slog.String("error", err.Error()))
			f.instr.ErrorIgnored()
			return
		}
		if err := f.removeMarker(ctx, key); err != nil {
			slog.Debug("marker removal failed during cleanup",
				slog.String("key", key), slog.String("error", err.Error()))
			f.instr.ErrorIgnored()
			return
		}
		slog.Debug("removed stale directory marker", slog.String("key", key))
	}
}

// ensureMarkedIfEmpty restores markers after a delete at path. It walks from
// the deleted object's parent upward, creating a marker at every level that
// no longer resolves, and stops at the first ancestor that still exists (or
// at the root).
func (f *FileSystem) ensureMarkedIfEmpty(ctx context.Context, path string) {
	for p := parentPath(path); !isRoot(p); p = parentPath(p) {
		_, err := f.Stat(ctx, p)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Debug("stat failed during marker repair",
				slog.String("path", p), slog.String("error", err.Error()))
			f.instr.ErrorIgnored()
			return
		}
		if err := f.createMarker(ctx, f.pathToKey(p)); err != nil {
			slog.Debug("marker creation failed during repair",
				slog.String("path", p), slog.String("error", err.Error()))
			f.instr.ErrorIgnored()
			return
		}
		slog.Debug("recreated directory marker", slog.String("path", p))
	}
}

// finishedWrite runs the marker cleanup owed after any object create/copy.
func (f *FileSystem) finishedWrite(ctx context.Context, key string) {
	f.ensureParentNotMarked(ctx, keyToPath(key))
}
