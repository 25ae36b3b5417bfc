package fs

import (
	"context"
	"log/slog"
	"strings"
)

// List returns the statuses of the entries directly under a directory, or
// the single status of a non-directory path. Fails with ErrNotFound when the
// path does not exist.
func (f *FileSystem) List(ctx context.Context, path string) ([]FileStatus, error) {
	status, err := f.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if status.IsFile() {
		return []FileStatus{status}, nil
	}

	key := dirKey(f.pathToKey(path))
	slog.Debug("list", slog.String("prefix", key))

	var result []FileStatus
	token := ""
	for {
		page, err := f.client.ListObjects(ctx, key, Separator, token, f.maxKeys)
		f.instr.ReadOps(1)
		if err != nil {
			return nil, f.escalate("list", key, err)
		}

		for _, obj := range page.Objects {
			// Skip the directory's own marker and legacy folder objects left
			// behind by older clients.
			if obj.Key == key || strings.HasSuffix(obj.Key, legacyFolderSuffix) {
				continue
			}
			entryPath := keyToPath(strings.TrimSuffix(obj.Key, Separator))
			if objectRepresentsDirectory(obj.Key, obj.Size) {
				result = append(result, newDirStatus(entryPath, true))
			} else {
				result = append(result, f.newFileStatus(entryPath, obj.Size, obj.LastModified))
			}
		}
		for _, prefix := range page.CommonPrefixes {
			if prefix == key {
				continue
			}
			entryPath := keyToPath(strings.TrimSuffix(prefix, Separator))
			result = append(result, newDirStatus(entryPath, false))
		}

		if !page.IsTruncated {
			return result, nil
		}
		token = page.NextContinuationToken
	}
}
