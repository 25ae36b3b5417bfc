package fs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Open returns a sequential reader over a file's content. Directories
// cannot be opened.
func (f *FileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	slog.Debug("open", slog.String("path", path))

	status, err := f.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if status.IsDir {
		return nil, fmt.Errorf("cannot open %s because it is a directory: %w", path, ErrNotFound)
	}
	return &objectReader{
		ctx:       ctx,
		f:         f,
		key:       f.pathToKey(path),
		size:      status.Length,
		readahead: f.readahead,
	}, nil
}

// objectReader streams an object through ranged GETs. Each request covers at
// least the configured read-ahead window, so small sequential reads don't
// translate into one round trip per call.
type objectReader struct {
	ctx context.Context
	f   *FileSystem
	key string

	size      int64
	pos       int64
	readahead int64

	cur    io.ReadCloser
	curEnd int64 // exclusive
}

func (r *objectReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if r.cur == nil {
		length := r.readahead
		if int64(len(p)) > length {
			length = int64(len(p))
		}
		if r.pos+length > r.size {
			length = r.size - r.pos
		}
		rc, err := r.f.client.GetObject(r.ctx, r.key, r.pos, length)
		if err != nil {
			return 0, err
		}
		r.f.instr.ReadOps(1)
		r.cur = rc
		r.curEnd = r.pos + length
	}

	n, err := r.cur.Read(p)
	r.pos += int64(n)
	if err == io.EOF {
		closeErr := r.cur.Close()
		r.cur = nil
		if r.pos < r.size {
			// End of the current range, not of the object.
			err = closeErr
		}
	}
	return n, err
}

func (r *objectReader) Close() error {
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}
	return nil
}
