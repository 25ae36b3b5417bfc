// Command bucketfsd serves a hierarchical filesystem API over a flat object
// store bucket.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/damacus/bucketfs/internal/config"
	"github.com/damacus/bucketfs/internal/creds"
	"github.com/damacus/bucketfs/internal/fs"
	"github.com/damacus/bucketfs/internal/handlers"
	"github.com/damacus/bucketfs/internal/metrics"
	"github.com/damacus/bucketfs/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("BUCKETFS_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	credentials, err := creds.Resolve(cfg.Endpoint, cfg)
	if err != nil {
		slog.Error("failed to resolve credentials", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := store.NewMinio(store.MinioOptions{
		Endpoint:        creds.StripUserInfo(cfg.Endpoint),
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Secure:          cfg.Secure,
		PathStyle:       cfg.PathStyle,
		Credentials:     credentials,
		Transport:       transportFor(cfg),
		MaxRetries:      cfg.MaxRetries,
		UserAgentPrefix: cfg.UserAgentPrefix,
	})
	if err != nil {
		slog.Error("failed to init store client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	instr := metrics.New()

	filesystem, err := fs.New(context.Background(), client, cfg, instr)
	if err != nil {
		slog.Error("failed to init filesystem", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer filesystem.Close()

	e := newServer(filesystem, instr)

	slog.Info("bucketfsd listening",
		slog.String("address", cfg.Address), slog.String("bucket", cfg.Bucket))
	e.Logger.Fatal(e.Start(cfg.Address))
}

func newServer(filesystem handlers.FileSystem, instr *metrics.Instrumentation) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	files := handlers.NewFilesHandler(filesystem)

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(instr.Handler()))

	e.GET("/v1/stat", files.Stat)
	e.GET("/v1/list", files.List)
	e.POST("/v1/rename", files.Rename)
	e.POST("/v1/mkdirs", files.Mkdirs)
	e.GET("/v1/files/*", files.Download)
	e.PUT("/v1/files/*", files.Upload)
	e.DELETE("/v1/files/*", files.Delete)

	return e
}

// transportFor builds the HTTP transport consuming the connection-pool,
// timeout and proxy configuration.
func transportFor(cfg config.Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeout) * time.Millisecond,
	}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.SocketTimeout) * time.Millisecond,
		Proxy:                 http.ProxyFromEnvironment,
	}
	if raw := cfg.ProxyURL(); raw != "" {
		if proxyURL, err := url.Parse(raw); err == nil {
			tr.Proxy = http.ProxyURL(proxyURL)
		} else {
			slog.Error("invalid proxy configuration", slog.String("error", err.Error()))
		}
	}
	return tr
}
