package fs

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/damacus/bucketfs/internal/store"
)

// Rename moves src to dst by server-side copy followed by delete; the store
// has no atomic move. The boolean short-circuits mirror classic filesystem
// drivers: a false return means "not renameable", not an error. Backend
// failures during the copy/delete phase propagate.
//
// Refused with false: src or dst is the root; src does not exist; src is a
// directory while dst is a file; dst is a non-empty directory; dst's parent
// is missing or a file; dst is nested under src.
func (f *FileSystem) Rename(ctx context.Context, src, dst string) (bool, error) {
	srcKey := f.pathToKey(src)
	dstKey := f.pathToKey(dst)
	slog.Debug("rename", slog.String("src", src), slog.String("dst", dst))

	if srcKey == "" || dstKey == "" {
		return false, nil
	}

	srcStatus, err := f.Stat(ctx, src)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("rename: source not found", slog.String("src", src))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if srcKey == dstKey {
		return srcStatus.IsFile(), nil
	}

	var dstStatus *FileStatus
	st, err := f.Stat(ctx, dst)
	switch {
	case err == nil:
		dstStatus = &st
		if srcStatus.IsDir && dstStatus.IsFile() {
			return false, nil
		}
		if dstStatus.IsDir && !dstStatus.IsEmptyDir {
			return false, nil
		}
	case errors.Is(err, ErrNotFound):
		parent := parentPath(dst)
		if f.pathToKey(parent) != "" {
			parentStatus, err := f.Stat(ctx, parent)
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if !parentStatus.IsDir {
				return false, nil
			}
		}
	default:
		return false, err
	}

	if srcStatus.IsFile() {
		if err := f.renameFile(ctx, src, srcKey, dstKey, dstStatus, srcStatus.Length); err != nil {
			return false, err
		}
	} else {
		ok, err := f.renameDirectory(ctx, srcKey, dstKey, dstStatus)
		if err != nil || !ok {
			return ok, err
		}
	}

	if parentPath(src) != parentPath(dst) {
		f.ensureParentNotMarked(ctx, dst)
		f.ensureMarkedIfEmpty(ctx, src)
	}
	return true, nil
}

func (f *FileSystem) renameFile(ctx context.Context, src, srcKey, dstKey string, dstStatus *FileStatus, size int64) error {
	targetKey := dstKey
	if dstStatus != nil && dstStatus.IsDir {
		targetKey = dirKey(dstKey) + baseName(src)
	}
	if err := f.copyFile(ctx, srcKey, targetKey, size); err != nil {
		return err
	}
	if err := f.client.DeleteObject(ctx, srcKey); err != nil {
		return err
	}
	f.instr.WriteOps(1)
	f.instr.FilesDeleted(1)
	return nil
}

func (f *FileSystem) renameDirectory(ctx context.Context, srcKey, dstKey string, dstStatus *FileStatus) (bool, error) {
	srcKey = dirKey(srcKey)
	dstKey = dirKey(dstKey)

	// Cycle guard: a directory cannot move into its own subtree.
	if strings.HasPrefix(dstKey, srcKey) {
		slog.Debug("rename: destination nested under source",
			slog.String("src", srcKey), slog.String("dst", dstKey))
		return false, nil
	}

	keysToDelete := make([]string, 0, batchCeiling)
	if dstStatus != nil && dstStatus.IsEmptyDir {
		// The destination's marker becomes redundant once children arrive.
		keysToDelete = append(keysToDelete, dstKey)
	}

	token := ""
	for {
		page, err := f.client.ListObjects(ctx, srcKey, "", token, f.maxKeys)
		f.instr.ReadOps(1)
		if err != nil {
			return false, f.escalate("rename", srcKey, err)
		}

		for _, obj := range page.Objects {
			keysToDelete = append(keysToDelete, obj.Key)
			newDstKey := dstKey + obj.Key[len(srcKey):]
			if err := f.copyFile(ctx, obj.Key, newDstKey, obj.Size); err != nil {
				return false, err
			}
			if len(keysToDelete) == batchCeiling {
				if err := f.removeKeys(ctx, keysToDelete); err != nil {
					return false, err
				}
				keysToDelete = keysToDelete[:0]
			}
		}

		if !page.IsTruncated {
			if len(keysToDelete) > 0 {
				if err := f.removeKeys(ctx, keysToDelete); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		token = page.NextContinuationToken
	}
}

// copyFile server-side copies one object, cloning its metadata field by
// field so derived headers get recomputed by the destination.
func (f *FileSystem) copyFile(ctx context.Context, srcKey, dstKey string, size int64) error {
	slog.Debug("copy", slog.String("src", srcKey), slog.String("dst", dstKey))

	srcMeta, err := f.client.HeadObject(ctx, srcKey)
	f.instr.ReadOps(1)
	if err != nil {
		return err
	}
	return f.transfers.Copy(ctx, srcKey, dstKey, size, f.cloneMetadata(srcMeta))
}

// cloneMetadata copies the known, non-empty metadata fields of a source
// object into put options for its copy. The server-side encryption setting
// always follows this filesystem's configuration, not the source object.
func (f *FileSystem) cloneMetadata(meta store.ObjectMeta) store.PutOptions {
	opts := store.PutOptions{
		ContentType:        meta.ContentType,
		ContentEncoding:    meta.ContentEncoding,
		ContentDisposition: meta.ContentDisposition,
		CacheControl:       meta.CacheControl,
		SSEAlgorithm:       f.sseAlgorithm,
	}
	if len(meta.UserMetadata) > 0 {
		opts.UserMetadata = make(map[string]string, len(meta.UserMetadata))
		for k, v := range meta.UserMetadata {
			opts.UserMetadata[k] = v
		}
	}
	return opts
}
