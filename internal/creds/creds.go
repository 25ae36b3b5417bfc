// Package creds resolves object store credentials, either through the
// standard provider chain or through a registered custom provider.
package creds

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/damacus/bucketfs/internal/config"
)

// Factory builds a credential source for a custom provider registered under
// a configuration name. It receives the canonical store endpoint and the
// credential configuration.
type Factory func(endpoint string, cfg config.Config) (*credentials.Credentials, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a custom credential provider selectable via the
// credentials.provider configuration key. Later registrations under the same
// name replace earlier ones.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// ResolutionError wraps any failure to construct a credential source.
type ResolutionError struct {
	Provider string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("resolve credentials via %q: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("resolve credentials: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolve builds the credential source for the given endpoint. When a custom
// provider is configured it is used exclusively; otherwise the chain is, in
// order: keys embedded in the endpoint's user-info segment, configured keys,
// an AWS-style secrets file, deprecated configuration keys (with a warning),
// platform instance identity, and finally anonymous access.
func Resolve(endpoint string, cfg config.Config) (*credentials.Credentials, error) {
	if cfg.Credentials.Provider != "" {
		registryMu.RLock()
		factory, ok := registry[cfg.Credentials.Provider]
		registryMu.RUnlock()
		if !ok {
			return nil, &ResolutionError{Provider: cfg.Credentials.Provider,
				Err: fmt.Errorf("no such credential provider registered")}
		}
		creds, err := factory(endpoint, cfg)
		if err != nil {
			return nil, &ResolutionError{Provider: cfg.Credentials.Provider, Err: err}
		}
		slog.Debug("using custom credential provider", slog.String("provider", cfg.Credentials.Provider))
		return creds, nil
	}

	accessKey, secretKey := resolveAccessKeys(endpoint, cfg.Credentials)

	var chain []credentials.Provider
	if accessKey != "" {
		chain = append(chain, &credentials.Static{Value: credentials.Value{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			SignerType:      signerType(cfg.Signer),
		}})
	}
	if cfg.Credentials.SecretsFile != "" {
		if _, err := os.Stat(cfg.Credentials.SecretsFile); err != nil {
			return nil, &ResolutionError{Err: fmt.Errorf("read secrets file: %w", err)}
		}
		chain = append(chain, &credentials.FileAWSCredentials{Filename: cfg.Credentials.SecretsFile})
	}
	chain = append(chain,
		&credentials.IAM{},
		&credentials.Static{Value: credentials.Value{SignerType: credentials.SignatureAnonymous}},
	)
	return credentials.NewChainCredentials(chain), nil
}

// resolveAccessKeys returns the first configured access/secret key pair:
// endpoint user-info, then configured keys, then the deprecated key names.
func resolveAccessKeys(endpoint string, cfg config.Credentials) (string, string) {
	if access, secret, ok := endpointUserInfo(endpoint); ok {
		return access, secret
	}
	if cfg.AccessKey != "" {
		return strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	}
	if cfg.DeprecatedAccessKey != "" {
		slog.Warn("awsAccessKeyId/awsSecretAccessKey are deprecated, use accessKey/secretKey instead")
		return strings.TrimSpace(cfg.DeprecatedAccessKey), strings.TrimSpace(cfg.DeprecatedSecretKey)
	}
	return "", ""
}

// signerType maps the optional signature-algorithm override onto the SDK's
// signer types. The default is V4.
func signerType(name string) credentials.SignatureType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "v2":
		return credentials.SignatureV2
	case "", "v4":
		return credentials.SignatureV4
	default:
		slog.Warn("unknown signer override, using v4", slog.String("signer", name))
		return credentials.SignatureV4
	}
}

// endpointUserInfo extracts "access:secret" or "access" from the user-info
// segment of the endpoint, if present.
func endpointUserInfo(endpoint string) (access, secret string, ok bool) {
	raw := endpoint
	if !strings.Contains(raw, "://") {
		raw = "dummy://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "", "", false
	}
	access = u.User.Username()
	if access == "" {
		return "", "", false
	}
	secret, _ = u.User.Password()
	return access, secret, true
}

// StripUserInfo removes any embedded credentials from an endpoint string so
// the raw keys never reach the HTTP client or the logs.
func StripUserInfo(endpoint string) string {
	raw := endpoint
	scheme := ""
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = raw[:i+3]
		raw = raw[i+3:]
	}
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		raw = raw[i+1:]
	}
	return scheme + raw
}
