package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/damacus/bucketfs/internal/store"
)

// fakeStore is an in-memory store.Client with S3-style prefix/delimiter
// listing semantics, so the emulation layer can be exercised end to end
// without a backend.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]*fakeUpload
	nextID  int

	// headErrs injects per-key HeadObject failures.
	headErrs map[string]error

	listCalls         int
	getCalls          int
	batchDeleteCalls  int
	singleDeleteCalls int
	abortCalls        int
}

type fakeObject struct {
	data    []byte
	opts    store.PutOptions
	modTime time.Time
}

type fakeUpload struct {
	key       string
	opts      store.PutOptions
	parts     map[int][]byte
	initiated time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  map[string]fakeObject{},
		uploads:  map[string]*fakeUpload{},
		headErrs: map[string]error{},
	}
}

// seed places an object directly, bypassing the filesystem layer.
func (s *fakeStore) seed(key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = fakeObject{data: []byte(content), modTime: time.Now()}
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) content(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[key].data)
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *fakeStore) HeadObject(_ context.Context, key string) (store.ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.headErrs[key]; err != nil {
		return store.ObjectMeta{}, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return store.ObjectMeta{}, fmt.Errorf("head %q: %w", key, store.ErrNotFound)
	}
	return store.ObjectMeta{
		Key:                key,
		Size:               int64(len(obj.data)),
		LastModified:       obj.modTime,
		ContentType:        obj.opts.ContentType,
		ContentEncoding:    obj.opts.ContentEncoding,
		ContentDisposition: obj.opts.ContentDisposition,
		CacheControl:       obj.opts.CacheControl,
		UserMetadata:       obj.opts.UserMetadata,
	}, nil
}

func (s *fakeStore) ListObjects(_ context.Context, prefix, delimiter, token string, maxKeys int) (store.ListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	type item struct {
		key      string
		isPrefix bool
		size     int64
		modTime  time.Time
	}

	var sorted []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	var items []item
	seen := map[string]bool{}
	for _, k := range sorted {
		rest := k[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{key: cp, isPrefix: true})
				}
				continue
			}
		}
		obj := s.objects[k]
		items = append(items, item{key: k, size: int64(len(obj.data)), modTime: obj.modTime})
	}

	start := 0
	if token != "" {
		for start < len(items) && items[start].key <= token {
			start++
		}
	}
	end := start + maxKeys
	truncated := end < len(items)
	if !truncated {
		end = len(items)
	}

	page := store.ListPage{IsTruncated: truncated}
	for _, it := range items[start:end] {
		if it.isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, it.key)
		} else {
			page.Objects = append(page.Objects, store.ObjectMeta{
				Key: it.key, Size: it.size, LastModified: it.modTime,
			})
		}
	}
	if truncated {
		page.NextContinuationToken = items[end-1].key
	}
	return page, nil
}

func (s *fakeStore) GetObject(_ context.Context, key string, offset, size int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, store.ErrNotFound)
	}
	data := obj.data
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	data = data[offset:]
	if size >= 0 && size < int64(len(data)) {
		data = data[:size]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) PutObject(_ context.Context, key string, r io.Reader, size int64, opts store.PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = fakeObject{data: data, opts: opts, modTime: time.Now()}
	return nil
}

func (s *fakeStore) CopyObject(_ context.Context, srcKey, dstKey string, opts store.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.objects[srcKey]
	if !ok {
		return fmt.Errorf("copy %q: %w", srcKey, store.ErrNotFound)
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	s.objects[dstKey] = fakeObject{data: data, opts: opts, modTime: time.Now()}
	return nil
}

func (s *fakeStore) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singleDeleteCalls++
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) DeleteObjects(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchDeleteCalls++
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *fakeStore) NewMultipartUpload(_ context.Context, key string, opts store.PutOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.uploads[id] = &fakeUpload{key: key, opts: opts, parts: map[int][]byte{}, initiated: time.Now()}
	return id, nil
}

func (s *fakeStore) UploadPart(_ context.Context, key, uploadID string, partNumber int, r io.Reader, size int64) (store.Part, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return store.Part{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok || up.key != key {
		return store.Part{}, fmt.Errorf("upload part: no such upload %q", uploadID)
	}
	up.parts[partNumber] = data
	return store.Part{Number: partNumber, ETag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (s *fakeStore) UploadPartCopy(_ context.Context, srcKey, dstKey, uploadID string, partNumber int, offset, size int64) (store.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.objects[srcKey]
	if !ok {
		return store.Part{}, fmt.Errorf("copy part %q: %w", srcKey, store.ErrNotFound)
	}
	up, ok := s.uploads[uploadID]
	if !ok || up.key != dstKey {
		return store.Part{}, fmt.Errorf("copy part: no such upload %q", uploadID)
	}
	end := offset + size
	if end > int64(len(src.data)) {
		end = int64(len(src.data))
	}
	data := make([]byte, end-offset)
	copy(data, src.data[offset:end])
	up.parts[partNumber] = data
	return store.Part{Number: partNumber, ETag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (s *fakeStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []store.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok || up.key != key {
		return fmt.Errorf("complete: no such upload %q", uploadID)
	}
	var data []byte
	for _, p := range parts {
		data = append(data, up.parts[p.Number]...)
	}
	s.objects[key] = fakeObject{data: data, opts: up.opts, modTime: time.Now()}
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeStore) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortCalls++
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeStore) AbortStaleMultipartUploads(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aborted := 0
	for id, up := range s.uploads {
		if up.initiated.Before(before) {
			delete(s.uploads, id)
			aborted++
		}
	}
	return aborted, nil
}

func (s *fakeStore) BucketExists(_ context.Context) (bool, error) { return true, nil }
