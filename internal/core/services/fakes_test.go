package services

import (
	"context"
	"io"
	"sync"

	"github.com/localregistry/proxy/internal/core/domain"
)

// fakeChunkStore is an in-memory driven.ChunkStore for exercising the
// core services without a database.
type fakeChunkStore struct {
	mu     sync.Mutex
	byPkg  map[string][]domain.Chunk
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

// fakeEmbeddingCache is an in-memory driven.EmbeddingCacheStore.
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
	if !ok || entry.Expired(nowUTC()) {
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

// fakeResponseCache is an in-memory driven.ResponseCacheStore.
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
	if !ok || entry.Expired(nowUTC()) {
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

// fakeModelBackend is an in-memory driven.ModelBackend whose behavior is
// fully controlled by the test.
type fakeModelBackend struct {
	mu           sync.Mutex
	embeddings   map[string][]float32
	embedErr     error
	generateFn   func(prompt string) (string, error)
	dimensions   int
	healthErr    error
	embedCalls   int
}

func newFakeModelBackend() *fakeModelBackend {
	return &fakeModelBackend{embeddings: map[string][]float32{}, dimensions: 3}
}

func (f *fakeModelBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embeddings[t]
	}
	return out, nil
}

func (f *fakeModelBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if v, ok := f.embeddings[text]; ok {
		return v, nil
	}
	return nil, nil
}

func (f *fakeModelBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if f.generateFn != nil {
		return f.generateFn(prompt)
	}
	return "generated answer", nil
}

func (f *fakeModelBackend) Dimensions() int { return f.dimensions }

func (f *fakeModelBackend) HealthCheck(ctx context.Context) error { return f.healthErr }

// fakeUpstreamRegistry is an in-memory driven.UpstreamRegistry.
type fakeUpstreamRegistry struct {
	metadata map[string]domain.Metadata
	err      error
}

func (f *fakeUpstreamRegistry) FetchMetadata(ctx context.Context, name string) (domain.Metadata, error) {
	if f.err != nil {
		return domain.Metadata{}, f.err
	}
	return f.metadata[name], nil
}

func (f *fakeUpstreamRegistry) FetchTarball(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	return nil, nil
}

// fakePackageStore is an in-memory driven.PackageStore.
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
	return nil, nil
}

func (f *fakePackageStore) DistinctPackageNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for key := range f.pkgs {
		for i := 0; i < len(key); i++ {
			if key[i] == '@' {
				name := key[:i]
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
				break
			}
		}
	}
	return names, nil
}

// fakeAuditStore is an in-memory driven.AuditStore.
type fakeAuditStore struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

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
