// Package config loads bucketfs runtime configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MinPartSize is the store-imposed floor for multipart part size and
	// multipart threshold.
	MinPartSize = 5 * 1024 * 1024

	// DefaultBlockSize is reported to filesystem clients for files.
	DefaultBlockSize = 32 * 1024 * 1024
)

// Config holds runtime configuration for bucketfs.
//
// YAML example:
//
//	address: ":8080"
//	endpoint: "s3.example.com:9000"
//	bucket: "data"
//	secure: true
//	credentials:
//	  accessKey: "AKIAEXAMPLE"
//	  secretKey: "secret"
//
// Environment overrides: BUCKETFS_CONFIG (path to the YAML file),
// BUCKETFS_ADDR, BUCKETFS_ENDPOINT, BUCKETFS_BUCKET, BUCKETFS_ACCESS_KEY,
// BUCKETFS_SECRET_KEY.
type Config struct {
	Address string `yaml:"address"`

	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region,omitempty"`
	Secure    bool   `yaml:"secure"`
	PathStyle bool   `yaml:"pathStyle"` // path-style vs virtual-hosted addressing

	MaxConnections int    `yaml:"maxConnections"` // connection pool ceiling
	MaxRetries     int    `yaml:"maxRetries"`
	ConnectTimeout int    `yaml:"connectTimeoutMs"`
	SocketTimeout  int    `yaml:"socketTimeoutMs"`
	Signer         string `yaml:"signer,omitempty"` // signature algorithm override

	Proxy Proxy `yaml:"proxy,omitempty"`

	UserAgentPrefix string `yaml:"userAgentPrefix,omitempty"`

	Credentials Credentials `yaml:"credentials"`

	MaxPagingKeys int `yaml:"maxPagingKeys"` // max keys per listing page

	PartSize           int64 `yaml:"partSize"`           // multipart part size, floor 5 MiB
	MultipartThreshold int64 `yaml:"multipartThreshold"` // single PUT below, multipart at or above
	FastUpload         bool  `yaml:"fastUpload"`         // stream parts as the caller writes

	BlockSize int64 `yaml:"blockSize"` // reported in FileStatus

	MultiObjectDelete bool  `yaml:"multiObjectDelete"` // true batch delete vs single-delete loop
	Readahead         int64 `yaml:"readahead"`         // byte range for sequential reads

	Pool Pool `yaml:"pool"`

	PurgeMultipart       bool  `yaml:"purgeMultipart"`       // startup sweep of stale uploads
	PurgeMultipartAgeSec int64 `yaml:"purgeMultipartAgeSec"` // max age before an upload is stale

	SSEAlgorithm string `yaml:"sseAlgorithm,omitempty"` // e.g. "AES256"
}

// Proxy configures an HTTP proxy between the client and the store.
// Host and port are mutually required; so are username and password.
type Proxy struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Credentials configures how store credentials are resolved. When Provider
// names a registered custom provider it is used exclusively; otherwise the
// standard chain applies.
type Credentials struct {
	AccessKey   string `yaml:"accessKey,omitempty"`
	SecretKey   string `yaml:"secretKey,omitempty"`
	SecretsFile string `yaml:"secretsFile,omitempty"` // AWS-style credentials file
	Provider    string `yaml:"provider,omitempty"`    // registered custom provider name

	// Deprecated key names kept for migration; using them logs a warning.
	DeprecatedAccessKey string `yaml:"awsAccessKeyId,omitempty"`
	DeprecatedSecretKey string `yaml:"awsSecretAccessKey,omitempty"`
}

// Pool bounds the shared transfer worker pool.
type Pool struct {
	CoreThreads  int `yaml:"coreThreads"`
	MaxThreads   int `yaml:"maxThreads"`
	KeepAliveSec int `yaml:"keepAliveSec"`
	MaxQueued    int `yaml:"maxQueued"` // queue depth multiplier per worker
}

// Default returns the configuration used when no file is present.
func Default() Config {
	procs := runtime.NumCPU() * 8
	return Config{
		Address:              ":8080",
		Secure:               true,
		MaxConnections:       15,
		MaxRetries:           10,
		ConnectTimeout:       50000,
		SocketTimeout:        50000,
		MaxPagingKeys:        5000,
		PartSize:             100 * 1024 * 1024,
		MultipartThreshold:   2 * 1024 * 1024 * 1024,
		BlockSize:            DefaultBlockSize,
		MultiObjectDelete:    true,
		Readahead:            64 * 1024,
		Pool:                 Pool{CoreThreads: procs, MaxThreads: procs, KeepAliveSec: 60, MaxQueued: 5},
		PurgeMultipartAgeSec: 86400,
	}
}

// Load reads configuration from path. An empty path tries ./config.yaml and
// falls back to defaults when the file is absent. Environment overrides are
// applied after the file, and the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BUCKETFS_ADDR"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("BUCKETFS_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("BUCKETFS_BUCKET"); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv("BUCKETFS_ACCESS_KEY"); v != "" {
		cfg.Credentials.AccessKey = v
	}
	if v := os.Getenv("BUCKETFS_SECRET_KEY"); v != "" {
		cfg.Credentials.SecretKey = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("config: endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("config: bucket is required")
	}
	if c.MaxPagingKeys < 1 {
		return fmt.Errorf("config: maxPagingKeys %d is below the minimum 1", c.MaxPagingKeys)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("config: maxConnections %d is below the minimum 1", c.MaxConnections)
	}
	if c.PartSize < MinPartSize {
		slog.Error("partSize must be at least 5 MiB; clamping", slog.Int64("partSize", c.PartSize))
		c.PartSize = MinPartSize
	}
	if c.MultipartThreshold < MinPartSize {
		slog.Error("multipartThreshold must be at least 5 MiB; clamping",
			slog.Int64("multipartThreshold", c.MultipartThreshold))
		c.MultipartThreshold = MinPartSize
	}
	if c.BlockSize < 1 {
		return fmt.Errorf("config: blockSize %d is below the minimum 1", c.BlockSize)
	}
	if c.Readahead < 0 {
		return fmt.Errorf("config: readahead must not be negative")
	}
	if (c.Proxy.Host == "") != (c.Proxy.Port == 0) && c.Proxy.Host == "" {
		return errors.New("config: proxy port set without proxy host")
	}
	if (c.Proxy.Username == "") != (c.Proxy.Password == "") {
		return errors.New("config: proxy username and password must be set together")
	}
	if c.Pool.MaxThreads == 0 {
		c.Pool.MaxThreads = runtime.NumCPU() * 8
	}
	if c.Pool.CoreThreads == 0 {
		c.Pool.CoreThreads = runtime.NumCPU() * 8
	}
	if c.Pool.MaxQueued < 1 {
		c.Pool.MaxQueued = 1
	}
	return nil
}

// ProxyURL renders the proxy configuration as a URL string, or "" when no
// proxy is configured. Defaulting the port follows the transport scheme.
func (c *Config) ProxyURL() string {
	if c.Proxy.Host == "" {
		return ""
	}
	port := c.Proxy.Port
	if port == 0 {
		if c.Secure {
			slog.Warn("proxy host set without port, using HTTPS default 443")
			port = 443
		} else {
			slog.Warn("proxy host set without port, using HTTP default 80")
			port = 80
		}
	}
	auth := ""
	if c.Proxy.Username != "" {
		auth = c.Proxy.Username + ":" + c.Proxy.Password + "@"
	}
	return fmt.Sprintf("http://%s%s:%d", auth, c.Proxy.Host, port)
}
