package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UpstreamRegistry = (*RegistryClient)(nil)

// RegistryClient is the outbound client to the upstream package
// registry. It performs no retries (§4.2): a failed metadata fetch or a
// mid-stream tarball failure is surfaced directly to the caller, who
// decides whether and how to retry.
type RegistryClient struct {
	baseURL        string
	metadataClient *http.Client
	tarballClient  *http.Client
}

// Config configures connection pooling and timeouts for the registry
// client, per §4.2 and §5's resource ceilings.
type Config struct {
	BaseURL         string
	MetadataTimeout time.Duration
	TarballIdleTimeout time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns the standard defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		MetadataTimeout:    10 * time.Second,
		TarballIdleTimeout: 60 * time.Second,
		MaxConnsPerHost:    50,
	}
}

// NewRegistryClient builds a RegistryClient with a pooled, TLS
// 1.2-minimum transport shared by both the metadata and tarball clients.
// The tarball client has no overall Timeout (a multi-hundred-megabyte
// tarball can legitimately take longer than any fixed deadline). The
// shared transport's ResponseHeaderTimeout, set from TarballIdleTimeout,
// bounds the wait for response headers; reads of a body already
// streaming have no idle timeout of their own.
func NewRegistryClient(cfg Config) *RegistryClient {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ResponseHeaderTimeout: cfg.TarballIdleTimeout,
	}

	return &RegistryClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		metadataClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.MetadataTimeout,
		},
		tarballClient: &http.Client{
			Transport: transport,
		},
	}
}

// FetchMetadata retrieves and parses the metadata document for name.
func (c *RegistryClient) FetchMetadata(ctx context.Context, name string) (domain.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("upstream: build metadata request: %w", err)
	}

	resp, err := c.metadataClient.Do(req)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Metadata{}, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Metadata{}, fmt.Errorf("%w: upstream status %d", domain.ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: read metadata body: %v", domain.ErrProtocol, err)
	}

	meta, err := domain.ParseMetadata(body)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: parse metadata: %v", domain.ErrProtocol, err)
	}
	return meta, nil
}

// FetchTarball opens a streaming body for a tarball URL. The transport's
// ResponseHeaderTimeout bounds the wait for headers; after that, the
// returned ReadCloser's Read calls are bounded only by the caller's own
// context, and a stalled body is not timed out per read.
func (c *RegistryClient) FetchTarball(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build tarball request: %w", err)
	}

	resp, err := c.tarballClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream status %d", domain.ErrUnreachable, resp.StatusCode)
	}

	return resp.Body, nil
}
