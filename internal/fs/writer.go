package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/damacus/bucketfs/internal/store"
)

// Create opens a write stream for a new file. With overwrite unset an
// existing path fails with ErrAlreadyExists. The returned writer performs no
// backend calls until data forces it to (fast mode) or until Close
// (buffered mode); Close blocks until the object is durable.
func (f *FileSystem) Create(ctx context.Context, path string, overwrite bool) (io.WriteCloser, error) {
	key := f.pathToKey(path)
	if key == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrAlreadyExists)
	}
	if !overwrite {
		exists, err := f.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", path, ErrAlreadyExists)
		}
	}
	f.instr.FileCreated()

	if f.fastUpload {
		return newFastWriter(ctx, f, key), nil
	}
	return newBufferedWriter(ctx, f, key)
}

// bufferedWriter spools everything to a local temp file and uploads on
// Close: a single PUT below the multipart threshold, a multipart upload at
// or above it.
type bufferedWriter struct {
	ctx    context.Context
	f      *FileSystem
	key    string
	spool  *os.File
	size   int64
	closed bool
}

func newBufferedWriter(ctx context.Context, f *FileSystem, key string) (*bufferedWriter, error) {
	spool, err := os.CreateTemp("", "bucketfs-upload-")
	if err != nil {
		return nil, fmt.Errorf("create upload spool: %w", err)
	}
	return &bufferedWriter{ctx: ctx, f: f, key: key, spool: spool}, nil
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	n, err := w.spool.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *bufferedWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer func() {
		name := w.spool.Name()
		if err := w.spool.Close(); err != nil {
			slog.Debug("close upload spool", slog.String("error", err.Error()))
		}
		if err := os.Remove(name); err != nil {
			slog.Debug("remove upload spool", slog.String("error", err.Error()))
		}
	}()

	opts := store.PutOptions{SSEAlgorithm: w.f.sseAlgorithm}
	if err := w.f.transfers.Upload(w.ctx, w.key, w.spool, w.size, opts); err != nil {
		return err
	}
	w.f.finishedWrite(w.ctx, w.key)
	return nil
}

// fastWriter streams parts as the caller writes, keeping at most one part of
// data in memory. The multipart upload starts lazily: small files that never
// fill a part become a single PUT on Close.
type fastWriter struct {
	ctx    context.Context
	cancel context.CancelFunc
	f      *FileSystem
	key    string

	buf      []byte
	uploadID string
	partNum  int

	wg       sync.WaitGroup
	mu       sync.Mutex
	parts    []store.Part
	firstErr error

	closed bool
}

func newFastWriter(ctx context.Context, f *FileSystem, key string) *fastWriter {
	ctx, cancel := context.WithCancel(ctx)
	return &fastWriter{
		ctx:    ctx,
		cancel: cancel,
		f:      f,
		key:    key,
		buf:    make([]byte, 0, f.transfers.PartSize()),
	}
}

func (w *fastWriter) Write(p []byte) (int, error) {
	if err := w.err(); err != nil {
		return 0, err
	}
	total := len(p)
	partSize := int(w.f.transfers.PartSize())
	for len(p) > 0 {
		room := partSize - len(w.buf)
		if room > len(p) {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
		p = p[room:]
		if len(w.buf) == partSize {
			if err := w.flushPart(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// flushPart hands the full buffer to the shared pool and starts a fresh one.
func (w *fastWriter) flushPart() error {
	if w.uploadID == "" {
		uploadID, err := w.f.client.NewMultipartUpload(w.ctx, w.key,
			store.PutOptions{SSEAlgorithm: w.f.sseAlgorithm})
		if err != nil {
			return err
		}
		w.uploadID = uploadID
	}

	w.partNum++
	partNumber := w.partNum
	data := w.buf
	w.buf = make([]byte, 0, w.f.transfers.PartSize())

	w.wg.Add(1)
	w.f.pool.Submit(func() {
		defer w.wg.Done()
		if w.ctx.Err() != nil {
			return
		}
		part, err := w.f.client.UploadPart(w.ctx, w.key, w.uploadID, partNumber,
			bytes.NewReader(data), int64(len(data)))
		w.mu.Lock()
		defer w.mu.Unlock()
		if err != nil {
			if w.firstErr == nil {
				w.firstErr = err
			}
			w.cancel()
			return
		}
		w.parts = append(w.parts, part)
		w.f.instr.WriteOps(1)
		w.f.instr.BytesUploaded(int64(len(data)))
	})
	return nil
}

func (w *fastWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.cancel()

	if w.uploadID == "" {
		// Never crossed a part boundary: one PUT covers the whole object.
		opts := store.PutOptions{SSEAlgorithm: w.f.sseAlgorithm}
		if err := w.f.client.PutObject(w.ctx, w.key, bytes.NewReader(w.buf), int64(len(w.buf)), opts); err != nil {
			return err
		}
		w.f.instr.WriteOps(1)
		w.f.instr.BytesUploaded(int64(len(w.buf)))
		w.f.finishedWrite(w.ctx, w.key)
		return nil
	}

	if len(w.buf) > 0 {
		if err := w.flushPart(); err != nil {
			w.abort()
			return err
		}
	}
	w.wg.Wait()

	if err := w.err(); err != nil {
		w.abort()
		return err
	}

	w.mu.Lock()
	parts := make([]store.Part, len(w.parts))
	copy(parts, w.parts)
	w.mu.Unlock()
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	if err := w.f.client.CompleteMultipartUpload(w.ctx, w.key, w.uploadID, parts); err != nil {
		w.abort()
		return err
	}
	w.f.instr.WriteOps(1)
	w.f.finishedWrite(w.ctx, w.key)
	return nil
}

func (w *fastWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

func (w *fastWriter) abort() {
	ctx := context.Background()
	if err := w.f.client.AbortMultipartUpload(ctx, w.key, w.uploadID); err != nil {
		slog.Debug("abort multipart upload failed",
			slog.String("key", w.key), slog.String("error", err.Error()))
		w.f.instr.ErrorIgnored()
	}
}
