package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Delete removes a file or directory. Deleting an absent path returns false
// without error, making the operation idempotent. A populated directory
// needs recursive set or fails with ErrNotEmptyDirectory. The root directory
// is never deleted.
func (f *FileSystem) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	slog.Debug("delete", slog.String("path", path), slog.Bool("recursive", recursive))

	status, err := f.Stat(ctx, path)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("delete: path does not exist", slog.String("path", path))
		f.instr.ErrorIgnored()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	key := f.pathToKey(path)

	if status.IsDir {
		if !recursive && !status.IsEmptyDir {
			return false, fmt.Errorf("%s: %w", path, ErrNotEmptyDirectory)
		}
		if key == "" {
			slog.Info("refusing to delete the root directory")
			return false, nil
		}
		key = dirKey(key)

		if status.IsEmptyDir {
			if err := f.removeMarker(ctx, key); err != nil {
				return false, err
			}
		} else if err := f.deletePrefix(ctx, key); err != nil {
			return false, err
		}
	} else {
		if err := f.client.DeleteObject(ctx, key); err != nil {
			return false, err
		}
		f.instr.WriteOps(1)
		f.instr.FilesDeleted(1)
	}

	f.ensureMarkedIfEmpty(ctx, path)
	return true, nil
}

// deletePrefix enumerates every object under a directory prefix and deletes
// them in batches capped at the store's ceiling.
func (f *FileSystem) deletePrefix(ctx context.Context, prefix string) error {
	keys := make([]string, 0, batchCeiling)
	token := ""
	for {
		page, err := f.client.ListObjects(ctx, prefix, "", token, f.maxKeys)
		f.instr.ReadOps(1)
		if err != nil {
			return f.escalate("delete", prefix, err)
		}

		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
			if len(keys) == batchCeiling {
				if err := f.removeKeys(ctx, keys); err != nil {
					return err
				}
				keys = keys[:0]
			}
		}

		if !page.IsTruncated {
			if len(keys) > 0 {
				return f.removeKeys(ctx, keys)
			}
			return nil
		}
		token = page.NextContinuationToken
	}
}

// removeKeys deletes a batch of keys, either with a true multi-key call or a
// single-delete loop. The strategy is fixed at startup by configuration.
func (f *FileSystem) removeKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if f.multiObjectDelete {
		if err := f.client.DeleteObjects(ctx, keys); err != nil {
			return err
		}
		f.instr.WriteOps(1)
	} else {
		for _, key := range keys {
			if err := f.client.DeleteObject(ctx, key); err != nil {
				return err
			}
			f.instr.WriteOps(1)
		}
	}
	f.instr.FilesDeleted(len(keys))
	return nil
}
