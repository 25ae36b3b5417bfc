// Package handlers exposes the emulated filesystem over HTTP.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/damacus/bucketfs/internal/fs"
	"github.com/damacus/bucketfs/internal/models"
	"github.com/damacus/bucketfs/internal/store"
	"github.com/damacus/bucketfs/internal/transfer"
	"github.com/damacus/bucketfs/internal/utils"
)

// FileSystem is the operation surface the gateway needs; *fs.FileSystem
// implements it.
type FileSystem interface {
	Stat(ctx context.Context, path string) (fs.FileStatus, error)
	List(ctx context.Context, path string) ([]fs.FileStatus, error)
	Rename(ctx context.Context, src, dst string) (bool, error)
	Delete(ctx context.Context, path string, recursive bool) (bool, error)
	Mkdirs(ctx context.Context, path string) (bool, error)
	Create(ctx context.Context, path string, overwrite bool) (io.WriteCloser, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type FilesHandler struct {
	fs FileSystem
}

func NewFilesHandler(filesystem FileSystem) *FilesHandler {
	return &FilesHandler{fs: filesystem}
}

// Stat returns the status of a single path.
func (h *FilesHandler) Stat(c echo.Context) error {
	path := queryPath(c)
	status, err := h.fs.Stat(c.Request().Context(), path)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entryFromStatus(status))
}

// List returns the entries under a directory, or the single entry for a
// file path.
func (h *FilesHandler) List(c echo.Context) error {
	path := queryPath(c)
	statuses, err := h.fs.List(c.Request().Context(), path)
	if err != nil {
		return httpError(err)
	}
	listing := models.Listing{Path: path, Entries: make([]models.Entry, 0, len(statuses))}
	for _, status := range statuses {
		listing.Entries = append(listing.Entries, entryFromStatus(status))
	}
	return c.JSON(http.StatusOK, listing)
}

// Download streams a file's content.
func (h *FilesHandler) Download(c echo.Context) error {
	path := wildcardPath(c)
	r, err := h.fs.Open(c.Request().Context(), path)
	if err != nil {
		return httpError(err)
	}
	defer r.Close()
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, r)
}

// Upload writes the request body to a file. ?overwrite=true replaces an
// existing object.
func (h *FilesHandler) Upload(c echo.Context) error {
	path := wildcardPath(c)
	overwrite := c.QueryParam("overwrite") == "true"

	w, err := h.fs.Create(c.Request().Context(), path, overwrite)
	if err != nil {
		return httpError(err)
	}
	if _, err := io.Copy(w, c.Request().Body); err != nil {
		return httpError(err)
	}
	if err := w.Close(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, models.OpResult{Success: true})
}

// Delete removes a file or directory; ?recursive=true allows populated
// directories.
func (h *FilesHandler) Delete(c echo.Context) error {
	path := wildcardPath(c)
	recursive := c.QueryParam("recursive") == "true"

	ok, err := h.fs.Delete(c.Request().Context(), path, recursive)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, models.OpResult{Success: ok})
}

// Rename moves a file or directory.
func (h *FilesHandler) Rename(c echo.Context) error {
	var req models.RenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Source == "" || req.Destination == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source and destination are required")
	}

	ok, err := h.fs.Rename(c.Request().Context(), req.Source, req.Destination)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, fs.ErrIllegalRenameTarget.Error())
	}
	return c.JSON(http.StatusOK, models.OpResult{Success: true})
}

// Mkdirs creates a directory and any missing parents.
func (h *FilesHandler) Mkdirs(c echo.Context) error {
	path := queryPath(c)
	ok, err := h.fs.Mkdirs(c.Request().Context(), path)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, models.OpResult{Success: ok})
}

func entryFromStatus(status fs.FileStatus) models.Entry {
	entry := models.Entry{
		Path:        status.Path,
		Name:        baseName(status.Path),
		IsDirectory: status.IsDir,
		IsEmpty:     status.IsEmptyDir,
		Size:        status.Length,
		ModTime:     status.ModTime,
		BlockSize:   status.BlockSize,
	}
	if !status.IsDir {
		entry.FormattedSize = utils.FormatFileSize(status.Length)
	}
	return entry
}

func queryPath(c echo.Context) string {
	path := c.QueryParam("path")
	if path == "" {
		path = "/"
	}
	return path
}

func wildcardPath(c echo.Context) string {
	return "/" + strings.TrimPrefix(c.Param("*"), "/")
}

func baseName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// httpError translates the filesystem error taxonomy into HTTP statuses.
func httpError(err error) error {
	var rejected *store.RejectedError
	switch {
	case errors.Is(err, fs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, fs.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, fs.ErrNotEmptyDirectory):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, transfer.ErrTransferCancelled):
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	case errors.As(err, &rejected):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
