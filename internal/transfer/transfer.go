package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/damacus/bucketfs/internal/metrics"
	"github.com/damacus/bucketfs/internal/store"
)

// ErrTransferCancelled reports that an upload or copy wait was interrupted
// before completion. Partially transferred parts are not rolled back.
var ErrTransferCancelled = errors.New("transfer cancelled")

// EventType classifies progress events on a pending transfer.
type EventType int

const (
	// EventPartCompleted fires once per completed part (or once for a
	// single-shot transfer).
	EventPartCompleted EventType = iota
	// EventCompleted fires when the whole transfer has finished.
	EventCompleted
	// EventFailed fires when the transfer aborts.
	EventFailed
)

// Event is one progress notification. Events carry no correctness
// semantics; they only feed operation counters.
type Event struct {
	Type  EventType
	Bytes int64
}

// Transfer is an in-flight upload or copy. Wait blocks until completion or
// context cancellation; Events streams progress until the transfer settles.
type Transfer struct {
	events chan Event
	done   chan struct{}
	err    error
}

// Events returns the progress stream. The channel closes when the transfer
// settles.
func (t *Transfer) Events() <-chan Event { return t.events }

// Wait blocks until the transfer finishes or ctx is cancelled. Cancellation
// returns ErrTransferCancelled; the transfer itself keeps running in the
// background and is not rolled back.
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTransferCancelled, ctx.Err())
	}
}

func (t *Transfer) finish(err error) {
	t.err = err
	if err != nil {
		t.emit(Event{Type: EventFailed})
	} else {
		t.emit(Event{Type: EventCompleted})
	}
	close(t.events)
	close(t.done)
}

// emit never blocks; slow consumers just miss events.
func (t *Transfer) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}

// Manager owns the threshold-based choice between single-shot and multipart
// transfers. It does not retry: retry policy belongs to the backend client
// configuration.
type Manager struct {
	client    store.Client
	pool      *Pool
	partSize  int64
	threshold int64
	instr     *metrics.Instrumentation
}

// NewManager wires a Manager over a shared pool. partSize and threshold are
// expected to be at or above the store's 5 MiB floor; config enforces that.
func NewManager(client store.Client, pool *Pool, partSize, threshold int64, instr *metrics.Instrumentation) *Manager {
	return &Manager{
		client:    client,
		pool:      pool,
		partSize:  partSize,
		threshold: threshold,
		instr:     instr,
	}
}

// PartSize returns the configured multipart part size.
func (m *Manager) PartSize() int64 { return m.partSize }

// Threshold returns the size at which transfers switch to multipart.
func (m *Manager) Threshold() int64 { return m.threshold }

// Upload transfers size bytes of content to key, blocking until done.
func (m *Manager) Upload(ctx context.Context, key string, content io.ReaderAt, size int64, opts store.PutOptions) error {
	return m.StartUpload(ctx, key, content, size, opts).Wait(ctx)
}

// StartUpload begins an upload and returns the pending transfer.
func (m *Manager) StartUpload(ctx context.Context, key string, content io.ReaderAt, size int64, opts store.PutOptions) *Transfer {
	t := newTransfer()
	go func() {
		var err error
		if size < m.threshold {
			err = m.singleUpload(ctx, t, key, content, size, opts)
		} else {
			err = m.multipartUpload(ctx, t, key, content, size, opts)
		}
		if err == nil {
			m.instr.BytesUploaded(size)
		}
		t.finish(err)
	}()
	return t
}

// Copy performs a server-side copy of size bytes, blocking until done.
// Metadata for the destination is expected to already be cloned
// field-by-field by the caller from the source object's head response.
func (m *Manager) Copy(ctx context.Context, srcKey, dstKey string, size int64, opts store.PutOptions) error {
	t := newTransfer()
	go func() {
		var err error
		if size < m.threshold {
			err = m.singleCopy(ctx, t, srcKey, dstKey, size, opts)
		} else {
			err = m.multipartCopy(ctx, t, srcKey, dstKey, size, opts)
		}
		if err == nil {
			m.instr.FilesCopied(1)
			m.instr.BytesCopied(size)
		}
		t.finish(err)
	}()
	return t.Wait(ctx)
}

// SweepStaleUploads aborts multipart uploads initiated more than maxAge ago.
// A permission rejection is logged and ignored: the bucket may be read-only.
func (m *Manager) SweepStaleUploads(ctx context.Context, maxAge time.Duration) (int, error) {
	before := time.Now().Add(-maxAge)
	n, err := m.client.AbortStaleMultipartUploads(ctx, before)
	var rejected *store.RejectedError
	if errors.As(err, &rejected) && rejected.StatusCode == 403 {
		slog.Debug("stale upload sweep rejected, bucket may be read-only",
			slog.String("code", rejected.Code))
		m.instr.ErrorIgnored()
		return n, nil
	}
	return n, err
}

func newTransfer() *Transfer {
	return &Transfer{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

func (m *Manager) singleUpload(ctx context.Context, t *Transfer, key string, content io.ReaderAt, size int64, opts store.PutOptions) error {
	r := io.NewSectionReader(content, 0, size)
	if err := m.client.PutObject(ctx, key, r, size, opts); err != nil {
		return wrapCancelled(ctx, err)
	}
	m.instr.WriteOps(1)
	t.emit(Event{Type: EventPartCompleted, Bytes: size})
	return nil
}

func (m *Manager) multipartUpload(ctx context.Context, t *Transfer, key string, content io.ReaderAt, size int64, opts store.PutOptions) error {
	uploadID, err := m.client.NewMultipartUpload(ctx, key, opts)
	if err != nil {
		return wrapCancelled(ctx, err)
	}

	parts, err := m.runParts(ctx, t, size, func(partCtx context.Context, partNumber int, offset, length int64) (store.Part, error) {
		r := io.NewSectionReader(content, offset, length)
		return m.client.UploadPart(partCtx, key, uploadID, partNumber, r, length)
	})
	if err != nil {
		m.abort(key, uploadID)
		return wrapCancelled(ctx, err)
	}
	if err := m.client.CompleteMultipartUpload(ctx, key, uploadID, parts); err != nil {
		m.abort(key, uploadID)
		return wrapCancelled(ctx, err)
	}
	m.instr.WriteOps(1)
	return nil
}

func (m *Manager) singleCopy(ctx context.Context, t *Transfer, srcKey, dstKey string, size int64, opts store.PutOptions) error {
	if err := m.client.CopyObject(ctx, srcKey, dstKey, opts); err != nil {
		return wrapCancelled(ctx, err)
	}
	m.instr.WriteOps(1)
	t.emit(Event{Type: EventPartCompleted, Bytes: size})
	return nil
}

func (m *Manager) multipartCopy(ctx context.Context, t *Transfer, srcKey, dstKey string, size int64, opts store.PutOptions) error {
	uploadID, err := m.client.NewMultipartUpload(ctx, dstKey, opts)
	if err != nil {
		return wrapCancelled(ctx, err)
	}

	parts, err := m.runParts(ctx, t, size, func(partCtx context.Context, partNumber int, offset, length int64) (store.Part, error) {
		return m.client.UploadPartCopy(partCtx, srcKey, dstKey, uploadID, partNumber, offset, length)
	})
	if err != nil {
		m.abort(dstKey, uploadID)
		return wrapCancelled(ctx, err)
	}
	if err := m.client.CompleteMultipartUpload(ctx, dstKey, uploadID, parts); err != nil {
		m.abort(dstKey, uploadID)
		return wrapCancelled(ctx, err)
	}
	m.instr.WriteOps(1)
	return nil
}

// runParts fans size bytes out across the pool in partSize chunks and
// collects the completed parts in order. The first failure cancels the
// remaining parts; already-uploaded parts are left for the caller to abort.
func (m *Manager) runParts(ctx context.Context, t *Transfer, size int64,
	run func(ctx context.Context, partNumber int, offset, length int64) (store.Part, error)) ([]store.Part, error) {

	numParts := int((size + m.partSize - 1) / m.partSize)
	partCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts := make([]store.Part, numParts)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := 0; i < numParts; i++ {
		partNumber := i + 1
		offset := int64(i) * m.partSize
		length := m.partSize
		if offset+length > size {
			length = size - offset
		}
		wg.Add(1)
		m.pool.Submit(func() {
			defer wg.Done()
			if partCtx.Err() != nil {
				return
			}
			part, err := run(partCtx, partNumber, offset, length)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}
			parts[partNumber-1] = part
			m.instr.WriteOps(1)
			t.emit(Event{Type: EventPartCompleted, Bytes: length})
		})
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return parts, nil
}

// abort is best-effort cleanup after a failed multipart transfer.
func (m *Manager) abort(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.client.AbortMultipartUpload(ctx, key, uploadID); err != nil {
		slog.Debug("abort multipart upload failed", slog.String("key", key),
			slog.String("error", err.Error()))
		m.instr.ErrorIgnored()
	}
}

func wrapCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTransferCancelled, ctx.Err())
	}
	return err
}
