package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/damacus/bucketfs/internal/store"
)

// fakeClient records transfer-level calls; listing and metadata primitives
// are unused here and return zero values.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]map[int][]byte
	nextID  int

	puts          int
	copies        int
	partCalls     int
	partCopyCalls int
	completes     int
	aborts        int

	// failPart makes UploadPart/UploadPartCopy fail for that part number.
	failPart int

	// putGate, when set, blocks PutObject until the channel is closed.
	putGate chan struct{}

	staleAborted  int
	abortStaleErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects: map[string][]byte{},
		uploads: map[string]map[int][]byte{},
	}
}

func (c *fakeClient) data(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[key]
}

func (c *fakeClient) HeadObject(context.Context, string) (store.ObjectMeta, error) {
	return store.ObjectMeta{}, store.ErrNotFound
}

func (c *fakeClient) ListObjects(context.Context, string, string, string, int) (store.ListPage, error) {
	return store.ListPage{}, nil
}

func (c *fakeClient) GetObject(context.Context, string, int64, int64) (io.ReadCloser, error) {
	return nil, store.ErrNotFound
}

func (c *fakeClient) PutObject(_ context.Context, key string, r io.Reader, _ int64, _ store.PutOptions) error {
	if c.putGate != nil {
		<-c.putGate
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.objects[key] = data
	return nil
}

func (c *fakeClient) CopyObject(_ context.Context, srcKey, dstKey string, _ store.PutOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copies++
	src, ok := c.objects[srcKey]
	if !ok {
		return store.ErrNotFound
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	c.objects[dstKey] = dst
	return nil
}

func (c *fakeClient) DeleteObject(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *fakeClient) DeleteObjects(_ context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.objects, key)
	}
	return nil
}

func (c *fakeClient) NewMultipartUpload(_ context.Context, key string, _ store.PutOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("%s-upload-%d", key, c.nextID)
	c.uploads[id] = map[int][]byte{}
	return id, nil
}

func (c *fakeClient) UploadPart(_ context.Context, _, uploadID string, partNumber int, r io.Reader, _ int64) (store.Part, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return store.Part{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partCalls++
	if c.failPart == partNumber {
		return store.Part{}, &store.BackendError{Op: "upload part", Err: fmt.Errorf("injected failure")}
	}
	parts, ok := c.uploads[uploadID]
	if !ok {
		return store.Part{}, fmt.Errorf("no such upload %q", uploadID)
	}
	parts[partNumber] = data
	return store.Part{Number: partNumber, ETag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (c *fakeClient) UploadPartCopy(_ context.Context, srcKey, _, uploadID string, partNumber int, offset, size int64) (store.Part, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partCopyCalls++
	if c.failPart == partNumber {
		return store.Part{}, &store.BackendError{Op: "copy part", Err: fmt.Errorf("injected failure")}
	}
	src, ok := c.objects[srcKey]
	if !ok {
		return store.Part{}, store.ErrNotFound
	}
	parts, ok := c.uploads[uploadID]
	if !ok {
		return store.Part{}, fmt.Errorf("no such upload %q", uploadID)
	}
	end := offset + size
	if end > int64(len(src)) {
		end = int64(len(src))
	}
	data := make([]byte, end-offset)
	copy(data, src[offset:end])
	parts[partNumber] = data
	return store.Part{Number: partNumber, ETag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (c *fakeClient) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []store.Part) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completes++
	stored, ok := c.uploads[uploadID]
	if !ok {
		return fmt.Errorf("no such upload %q", uploadID)
	}
	var data []byte
	for _, p := range parts {
		data = append(data, stored[p.Number]...)
	}
	c.objects[key] = data
	delete(c.uploads, uploadID)
	return nil
}

func (c *fakeClient) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborts++
	delete(c.uploads, uploadID)
	return nil
}

func (c *fakeClient) AbortStaleMultipartUploads(_ context.Context, _ time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortStaleErr != nil {
		return 0, c.abortStaleErr
	}
	return c.staleAborted, nil
}

func (c *fakeClient) BucketExists(context.Context) (bool, error) { return true, nil }
