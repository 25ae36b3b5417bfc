package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damacus/bucketfs/internal/fs"
	"github.com/damacus/bucketfs/internal/models"
	"github.com/damacus/bucketfs/internal/store"
	"github.com/damacus/bucketfs/internal/transfer"
)

// stubFS implements FileSystem with function fields so each test wires only
// the operation it exercises.
type stubFS struct {
	statFn   func(ctx context.Context, path string) (fs.FileStatus, error)
	listFn   func(ctx context.Context, path string) ([]fs.FileStatus, error)
	renameFn func(ctx context.Context, src, dst string) (bool, error)
	deleteFn func(ctx context.Context, path string, recursive bool) (bool, error)
	mkdirsFn func(ctx context.Context, path string) (bool, error)
	createFn func(ctx context.Context, path string, overwrite bool) (io.WriteCloser, error)
	openFn   func(ctx context.Context, path string) (io.ReadCloser, error)
}

func (s *stubFS) Stat(ctx context.Context, path string) (fs.FileStatus, error) {
	return s.statFn(ctx, path)
}

func (s *stubFS) List(ctx context.Context, path string) ([]fs.FileStatus, error) {
	return s.listFn(ctx, path)
}

func (s *stubFS) Rename(ctx context.Context, src, dst string) (bool, error) {
	return s.renameFn(ctx, src, dst)
}

func (s *stubFS) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	return s.deleteFn(ctx, path, recursive)
}

func (s *stubFS) Mkdirs(ctx context.Context, path string) (bool, error) {
	return s.mkdirsFn(ctx, path)
}

func (s *stubFS) Create(ctx context.Context, path string, overwrite bool) (io.WriteCloser, error) {
	return s.createFn(ctx, path, overwrite)
}

func (s *stubFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.openFn(ctx, path)
}

type captureWriter struct {
	bytes.Buffer
	closed bool
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func newContext(method, target string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestStatHandler(t *testing.T) {
	modTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewFilesHandler(&stubFS{
		statFn: func(_ context.Context, path string) (fs.FileStatus, error) {
			assert.Equal(t, "/data/file.txt", path)
			return fs.FileStatus{Path: path, Length: 2048, ModTime: modTime, BlockSize: 1024}, nil
		},
	})
	c, rec := newContext(http.MethodGet, "/v1/stat?path=/data/file.txt", nil)

	require.NoError(t, h.Stat(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "/data/file.txt", entry.Path)
	assert.Equal(t, "file.txt", entry.Name)
	assert.False(t, entry.IsDirectory)
	assert.Equal(t, int64(2048), entry.Size)
	assert.Equal(t, "2.0 KB", entry.FormattedSize)
}

func TestStatHandler_DefaultsToRoot(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		statFn: func(_ context.Context, path string) (fs.FileStatus, error) {
			assert.Equal(t, "/", path)
			return fs.FileStatus{Path: path, IsDir: true, IsEmptyDir: true}, nil
		},
	})
	c, rec := newContext(http.MethodGet, "/v1/stat", nil)

	require.NoError(t, h.Stat(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.True(t, entry.IsDirectory)
	assert.Equal(t, "/", entry.Name)
}

func TestStatHandler_NotFound(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		statFn: func(_ context.Context, path string) (fs.FileStatus, error) {
			return fs.FileStatus{}, fmt.Errorf("%s: %w", path, fs.ErrNotFound)
		},
	})
	c, _ := newContext(http.MethodGet, "/v1/stat?path=/missing", nil)

	err := h.Stat(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestListHandler(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		listFn: func(_ context.Context, path string) ([]fs.FileStatus, error) {
			return []fs.FileStatus{
				{Path: "/dir/a.txt", Length: 3},
				{Path: "/dir/sub", IsDir: true},
			}, nil
		},
	})
	c, rec := newContext(http.MethodGet, "/v1/list?path=/dir", nil)

	require.NoError(t, h.List(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var listing models.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, "/dir", listing.Path)
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "a.txt", listing.Entries[0].Name)
	assert.True(t, listing.Entries[1].IsDirectory)
}

func TestDownloadHandler(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		openFn: func(_ context.Context, path string) (io.ReadCloser, error) {
			assert.Equal(t, "/dir/blob", path)
			return io.NopCloser(strings.NewReader("content")), nil
		},
	})
	c, rec := newContext(http.MethodGet, "/v1/files/dir/blob", nil)
	c.SetParamNames("*")
	c.SetParamValues("dir/blob")

	require.NoError(t, h.Download(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content", rec.Body.String())
}

func TestUploadHandler(t *testing.T) {
	w := &captureWriter{}
	var gotPath string
	var gotOverwrite bool
	h := NewFilesHandler(&stubFS{
		createFn: func(_ context.Context, path string, overwrite bool) (io.WriteCloser, error) {
			gotPath, gotOverwrite = path, overwrite
			return w, nil
		},
	})
	c, rec := newContext(http.MethodPut, "/v1/files/dir/blob?overwrite=true", strings.NewReader("payload"))
	c.SetParamNames("*")
	c.SetParamValues("dir/blob")

	require.NoError(t, h.Upload(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/dir/blob", gotPath)
	assert.True(t, gotOverwrite)
	assert.Equal(t, "payload", w.String())
	assert.True(t, w.closed)
}

func TestUploadHandler_Conflict(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		createFn: func(_ context.Context, path string, _ bool) (io.WriteCloser, error) {
			return nil, fmt.Errorf("%s: %w", path, fs.ErrAlreadyExists)
		},
	})
	c, _ := newContext(http.MethodPut, "/v1/files/existing", strings.NewReader("x"))
	c.SetParamNames("*")
	c.SetParamValues("existing")

	err := h.Upload(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestDeleteHandler(t *testing.T) {
	var gotRecursive bool
	h := NewFilesHandler(&stubFS{
		deleteFn: func(_ context.Context, path string, recursive bool) (bool, error) {
			gotRecursive = recursive
			return true, nil
		},
	})
	c, rec := newContext(http.MethodDelete, "/v1/files/dir?recursive=true", nil)
	c.SetParamNames("*")
	c.SetParamValues("dir")

	require.NoError(t, h.Delete(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotRecursive)
	var result models.OpResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestDeleteHandler_NotEmpty(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		deleteFn: func(_ context.Context, path string, _ bool) (bool, error) {
			return false, fmt.Errorf("%s: %w", path, fs.ErrNotEmptyDirectory)
		},
	})
	c, _ := newContext(http.MethodDelete, "/v1/files/dir", nil)
	c.SetParamNames("*")
	c.SetParamValues("dir")

	err := h.Delete(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestRenameHandler(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		renameFn: func(_ context.Context, src, dst string) (bool, error) {
			assert.Equal(t, "/a", src)
			assert.Equal(t, "/b", dst)
			return true, nil
		},
	})
	body := strings.NewReader(`{"source":"/a","destination":"/b"}`)
	c, rec := newContext(http.MethodPost, "/v1/rename", body)

	require.NoError(t, h.Rename(c))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRenameHandler_RefusedIsConflict(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		renameFn: func(_ context.Context, _, _ string) (bool, error) {
			return false, nil
		},
	})
	body := strings.NewReader(`{"source":"/a","destination":"/a/inside"}`)
	c, _ := newContext(http.MethodPost, "/v1/rename", body)

	err := h.Rename(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestRenameHandler_MissingFields(t *testing.T) {
	h := NewFilesHandler(&stubFS{})
	body := strings.NewReader(`{"source":"/a"}`)
	c, _ := newContext(http.MethodPost, "/v1/rename", body)

	err := h.Rename(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestMkdirsHandler(t *testing.T) {
	h := NewFilesHandler(&stubFS{
		mkdirsFn: func(_ context.Context, path string) (bool, error) {
			assert.Equal(t, "/new/dir", path)
			return true, nil
		},
	})
	c, rec := newContext(http.MethodPost, "/v1/mkdirs?path=/new/dir", nil)

	require.NoError(t, h.Mkdirs(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fs.ErrNotFound, http.StatusNotFound},
		{"already exists", fs.ErrAlreadyExists, http.StatusConflict},
		{"not empty", fs.ErrNotEmptyDirectory, http.StatusConflict},
		{"cancelled", transfer.ErrTransferCancelled, http.StatusRequestTimeout},
		{"rejected", &store.RejectedError{Code: "AccessDenied", StatusCode: 403}, http.StatusForbidden},
		{"backend", &store.BackendError{Err: errors.New("boom")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var httpErr *echo.HTTPError
			require.ErrorAs(t, httpError(tt.err), &httpErr)
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}
}
