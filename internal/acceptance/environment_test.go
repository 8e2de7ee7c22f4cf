// Package acceptance wires the real proxy, retrieval, and chat services
// against in-memory driven adapters (plus a real disk-backed file
// cache) so the end-to-end behaviors exercised by features/*.feature
// run without a database or network access.
package acceptance

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"

	nethttp "net/http"

	registryhttp "github.com/localregistry/proxy/internal/adapters/driving/http"
	"github.com/localregistry/proxy/internal/adapters/driven/filecache"
	"github.com/localregistry/proxy/internal/adapters/driven/hashing"
	"github.com/localregistry/proxy/internal/chunking"
	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/registry"
	"github.com/localregistry/proxy/internal/core/services"
)

// newTempDir creates a scratch directory for one scenario's disk-backed
// file cache. godog scenarios don't carry a *testing.T to hand to
// t.TempDir, so this allocates and relies on the OS to reclaim it; each
// scenario's directory is small (a handful of tarball bytes).
func newTempDir() (string, error) {
	return os.MkdirTemp("", "registry-proxy-acceptance-*")
}

// pkgRecord builds a domain.Package record for pre-seeding the package
// store in a "given the tarball is already cached" step.
func pkgRecord(name, version, filename string, verified bool) domain.Package {
	return domain.Package{
		Name:       name,
		Version:    version,
		CachedPath: filename,
		Verified:   verified,
	}
}

// environment bundles every component a scenario needs to drive and
// inspect, built fresh per scenario so state never leaks between them.
type environment struct {
	upstream   *fakeUpstream
	files      *filecache.DiskCache
	packages   *fakePackageStore
	audit      *fakeAuditStore
	chunks     *fakeChunkStore
	embeddings *fakeEmbeddingCache
	responses  *fakeResponseCache
	model      *fakeModelBackend

	proxy    *services.ProxyService
	ingest   *services.IngestService
	search   *services.RetrievalService
	chat     *services.ChatService
	stats    *services.StatsService

	httpSrv *httptest.Server

	lastResp          *nethttp.Response
	lastBody          []byte
	lastErr           error
	lastSearchResults []domain.RankedChunk
}

// get issues a GET against the wired HTTP surface and drains the body.
func (e *environment) get(path string) (*nethttp.Response, string, error) {
	return e.getWithHost(path, "registry.local")
}

// getWithHost issues a GET with an explicit Host header, so tests can
// exercise the tarball-URL rewriting rule against an arbitrary
// requested address.
func (e *environment) getWithHost(path, host string) (*nethttp.Response, string, error) {
	req, err := nethttp.NewRequest("GET", e.httpSrv.URL+path, nil)
	if err != nil {
		return nil, "", err
	}
	req.Host = host
	resp, err := e.httpSrv.Client().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, "", err
	}
	return resp, string(body), nil
}

func newEnvironment(dir string) *environment {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	files, err := filecache.NewDiskCache(dir)
	if err != nil {
		panic(err)
	}

	env := &environment{
		upstream:   newFakeUpstream(),
		files:      files,
		packages:   newFakePackageStore(),
		audit:      newFakeAuditStore(),
		chunks:     newFakeChunkStore(),
		embeddings: newFakeEmbeddingCache(),
		responses:  newFakeResponseCache(),
		model:      newFakeModelBackend(),
	}

	hasher := hashing.NewEngine()
	verifier := registry.NewVerifier(env.upstream, hasher, env.files, env.audit, env.packages, log)
	env.proxy = services.NewProxyService(env.upstream, env.files, env.packages, verifier, log)
	env.ingest = services.NewIngestService(env.upstream, env.chunks, env.model, chunking.DefaultConfig())
	env.search = services.NewRetrievalService(env.chunks, env.embeddings, env.model, services.DefaultRetrievalConfig())
	env.chat = services.NewChatService(env.responses, env.search, env.model, domain.ResponseCacheTTL)
	env.stats = services.NewStatsService(env.packages, env.chunks, env.embeddings, env.responses, env.audit)

	srv := registryhttp.NewServer(
		registryhttp.DefaultConfig(),
		env.proxy, env.chat, env.search, env.ingest, env.stats,
		alwaysUpPinger{}, nil, log,
	)
	env.httpSrv = httptest.NewServer(srv.Handler())

	return env
}

func (e *environment) close() {
	e.httpSrv.Close()
}

type alwaysUpPinger struct{}

func (alwaysUpPinger) Ping(ctx context.Context) error { return nil }

// seedPackage registers a package with the fake upstream: one version,
// a tarball body, and the matching sha512 integrity string.
func (e *environment) seedPackage(name, version, tarballBody string) {
	e.upstream.addPackage(name, version, tarballBody, sha512Integrity(tarballBody))
}

func sha512Integrity(body string) string {
	sum := sha512.Sum512([]byte(body))
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

// fakeUpstream is an in-memory driven.UpstreamRegistry with controls for
// the acceptance scenarios: going offline, and corrupting a tarball's
// bytes in flight while leaving its declared integrity untouched.
type fakeUpstream struct {
	mu             sync.Mutex
	online         bool
	metadataCalls  int
	tarballCalls   int
	metadata       map[string]domain.Metadata
	tarballs       map[string]string
	corruptedURLs  map[string]bool
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		online:        true,
		metadata:      map[string]domain.Metadata{},
		tarballs:      map[string]string{},
		corruptedURLs: map[string]bool{},
	}
}

func (f *fakeUpstream) addPackage(name, version, tarballBody, integrity string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tarballURL := fmt.Sprintf("https://upstream.example/%s/-/%s-%s.tgz", name, name, version)
	f.tarballs[tarballURL] = tarballBody

	meta, ok := f.metadata[name]
	if !ok {
		meta = domain.Metadata{Raw: map[string]any{
			"name":        name,
			"dist-tags":   map[string]any{"latest": version},
			"versions":    map[string]any{},
			"description": "",
			"readme":      "",
		}}
	}
	versions := meta.Raw["versions"].(map[string]any)
	versions[version] = map[string]any{
		"dist": map[string]any{
			"tarball":   tarballURL,
			"integrity": integrity,
		},
	}
	f.metadata[name] = meta
}

func (f *fakeUpstream) setReadme(name, readme string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.metadata[name]
	if !ok {
		meta = domain.Metadata{Raw: map[string]any{
			"name":      name,
			"dist-tags": map[string]any{},
			"versions":  map[string]any{},
		}}
	}
	meta.Raw["readme"] = readme
	f.metadata[name] = meta
}

func (f *fakeUpstream) goOffline() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = false
}

// corruptNextFetch marks every tarball URL for name/version as
// returning a tampered body on every FetchTarball call from then on, while the
// metadata's declared integrity keeps describing the original, honest
// body — reproducing an upstream integrity mismatch.
func (f *fakeUpstream) corruptNextFetch(name, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tarballURL := fmt.Sprintf("https://upstream.example/%s/-/%s-%s.tgz", name, name, version)
	f.corruptedURLs[tarballURL] = true
}

func (f *fakeUpstream) FetchMetadata(ctx context.Context, name string) (domain.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	if !f.online {
		return domain.Metadata{}, domain.ErrUnreachable
	}
	meta, ok := f.metadata[name]
	if !ok {
		return domain.Metadata{}, domain.ErrNotFound
	}
	return meta.Clone(), nil
}

func (f *fakeUpstream) FetchTarball(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tarballCalls++
	if !f.online {
		return nil, domain.ErrUnreachable
	}
	body, ok := f.tarballs[tarballURL]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if f.corruptedURLs[tarballURL] {
		body = body + "-tampered"
	}
	return io.NopCloser(bytes.NewBufferString(body)), nil
}

func (f *fakeUpstream) snapshot() (metadataCalls, tarballCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls, f.tarballCalls
}

// fakePackageStore, fakeAuditStore, fakeChunkStore, fakeEmbeddingCache,
// fakeResponseCache, and fakeModelBackend mirror the in-memory driven
// adapters used elsewhere in the unit suite, duplicated here because
// Go test helpers are not importable across package boundaries.

type fakePackageStore struct {
	mu   sync.Mutex
	pkgs map[string]domain.Package
}

func newFakePackageStore() *fakePackageStore {
	return &fakePackageStore{pkgs: map[string]domain.Package{}}
}

func (f *fakePackageStore) Save(ctx context.Context, pkg domain.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pkgs[pkg.Name+"@"+pkg.Version] = pkg
	return nil
}

func (f *fakePackageStore) Get(ctx context.Context, name, version string) (domain.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.pkgs[name+"@"+version]
	if !ok {
		return domain.Package{}, domain.ErrNotFound
	}
	return pkg, nil
}

func (f *fakePackageStore) ListByName(ctx context.Context, name string) ([]domain.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Package
	for _, p := range f.pkgs {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePackageStore) DistinctPackageNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, p := range f.pkgs {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names, nil
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func newFakeAuditStore() *fakeAuditStore { return &fakeAuditStore{} }

func (f *fakeAuditStore) Append(ctx context.Context, event domain.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) Stats(ctx context.Context) (domain.SecurityStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := domain.SecurityStats{Total: len(f.events)}
	for _, e := range f.events {
		switch e.Kind {
		case domain.EventSuccess:
			stats.Successful++
		case domain.EventThreatDetected:
			stats.ThreatsDetected++
		case domain.EventFailure:
			stats.Failures++
		}
	}
	return stats, nil
}

func (f *fakeAuditStore) eventsOfKind(kind domain.EventKind) []domain.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityEvent
	for _, e := range f.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeChunkStore struct {
	mu    sync.Mutex
	byPkg map[string][]domain.Chunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byPkg: map[string][]domain.Chunk{}}
}

func (f *fakeChunkStore) ReplaceForPackage(ctx context.Context, packageName string, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byPkg[packageName] = chunks
	return nil
}

func (f *fakeChunkStore) GetByPackage(ctx context.Context, packageName string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Chunk{}, f.byPkg[packageName]...), nil
}

func (f *fakeChunkStore) AllWithEmbeddings(ctx context.Context) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunks := range f.byPkg {
		for _, c := range chunks {
			if c.HasEmbedding() {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeChunkStore) All(ctx context.Context) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunks := range f.byPkg {
		out = append(out, chunks...)
	}
	return out, nil
}

func (f *fakeChunkStore) UpdateEmbedding(ctx context.Context, packageName string, chunkIndex int, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := f.byPkg[packageName]
	for i := range chunks {
		if chunks[i].ChunkIndex == chunkIndex {
			chunks[i].Embedding = embedding
		}
	}
	return nil
}

func (f *fakeChunkStore) CountTotal(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, chunks := range f.byPkg {
		n += len(chunks)
	}
	return n, nil
}

func (f *fakeChunkStore) CountWithEmbeddings(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, chunks := range f.byPkg {
		for _, c := range chunks {
			if c.HasEmbedding() {
				n++
			}
		}
	}
	return n, nil
}

type fakeEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]domain.EmbeddingCacheEntry
}

func newFakeEmbeddingCache() *fakeEmbeddingCache {
	return &fakeEmbeddingCache{entries: map[string]domain.EmbeddingCacheEntry{}}
}

func (f *fakeEmbeddingCache) Get(ctx context.Context, textDigest string) ([]float32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[textDigest]
	if !ok {
		return nil, false, nil
	}
	return entry.Embedding, true, nil
}

func (f *fakeEmbeddingCache) Set(ctx context.Context, entry domain.EmbeddingCacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.TextDigest] = entry
	return nil
}

func (f *fakeEmbeddingCache) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

type fakeResponseCache struct {
	mu      sync.Mutex
	entries map[string]domain.ResponseCacheEntry
}

func newFakeResponseCache() *fakeResponseCache {
	return &fakeResponseCache{entries: map[string]domain.ResponseCacheEntry{}}
}

func (f *fakeResponseCache) Get(ctx context.Context, questionDigest string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[questionDigest]
	if !ok {
		return "", false, nil
	}
	return entry.Answer, true, nil
}

func (f *fakeResponseCache) Set(ctx context.Context, entry domain.ResponseCacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.QuestionDigest] = entry
	return nil
}

func (f *fakeResponseCache) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

// fakeModelBackend is an in-memory driven.ModelBackend with a healthy
// toggle so a scenario can simulate the embedding backend going down
// without touching the upstream registry's own online/offline state.
type fakeModelBackend struct {
	mu         sync.Mutex
	healthy    bool
	embeddings map[string][]float32
	generateFn func(prompt string) (string, error)
}

func newFakeModelBackend() *fakeModelBackend {
	return &fakeModelBackend{healthy: true, embeddings: map[string][]float32{}}
}

func (f *fakeModelBackend) setUnhealthy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = false
}

func (f *fakeModelBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return nil, domain.ErrDegraded
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embeddings[t]
	}
	return out, nil
}

func (f *fakeModelBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return nil, domain.ErrDegraded
	}
	return f.embeddings[text], nil
}

func (f *fakeModelBackend) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	fn := f.generateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt)
	}
	return "generated answer", nil
}

func (f *fakeModelBackend) Dimensions() int { return 3 }

func (f *fakeModelBackend) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return domain.ErrDegraded
	}
	return nil
}

var (
	_ driven.UpstreamRegistry = (*fakeUpstream)(nil)
	_ driven.PackageStore     = (*fakePackageStore)(nil)
	_ driven.AuditStore       = (*fakeAuditStore)(nil)
	_ driven.ChunkStore       = (*fakeChunkStore)(nil)
	_ driven.EmbeddingCacheStore = (*fakeEmbeddingCache)(nil)
	_ driven.ResponseCacheStore  = (*fakeResponseCache)(nil)
	_ driven.ModelBackend        = (*fakeModelBackend)(nil)
)
