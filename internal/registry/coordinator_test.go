package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localregistry/proxy/internal/core/ports/driven"
)

type fakeFileCache struct {
	mu      sync.Mutex
	exists  map[string]bool
	content map[string]string
}

func newFakeFileCache() *fakeFileCache {
	return &fakeFileCache{exists: map[string]bool{}, content: map[string]string{}}
}

func (f *fakeFileCache) TarballExists(filename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[filename]
}

func (f *fakeFileCache) OpenTarball(filename string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.content[filename])), nil
}

func (f *fakeFileCache) CreateTempTarball(filename string) (driven.WriteCloserNamed, error) {
	return nil, fmt.Errorf("not used by this fake")
}

func (f *fakeFileCache) commit(filename, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[filename] = content
	f.exists[filename] = true
}

func (f *fakeFileCache) CommitTarball(tempPath, filename string) error { return nil }
func (f *fakeFileCache) DiscardTemp(tempPath string) error             { return nil }
func (f *fakeFileCache) DeleteTarball(filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exists, filename)
	delete(f.content, filename)
	return nil
}
func (f *fakeFileCache) ReadMetadata(packageName string) ([]byte, error)     { return nil, nil }
func (f *fakeFileCache) WriteMetadata(packageName string, data []byte) error { return nil }
func (f *fakeFileCache) ListTarballFilenames() ([]string, error)             { return nil, nil }

type countingFetcher struct {
	calls int32
	files *fakeFileCache
}

func (c *countingFetcher) FetchAndVerify(ctx context.Context, name, version, filename string, dst io.Writer) error {
	atomic.AddInt32(&c.calls, 1)
	body := "tarball-bytes-for-" + filename
	c.files.commit(filename, body)
	_, err := dst.Write([]byte(body))
	return err
}

func TestCoordinatorSingleFlightOneUpstreamCall(t *testing.T) {
	files := newFakeFileCache()
	fetcher := &countingFetcher{files: files}
	coordinator := NewCoordinator(files, fetcher)

	const n = 10
	var wg sync.WaitGroup
	bodies := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			err := coordinator.Resolve(context.Background(), "left-pad", "1.3.0", "left-pad-1.3.0.tgz", &buf)
			require.NoError(t, err)
			bodies[i] = buf.String()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
}

func TestCoordinatorSkipsFetchWhenAlreadyCached(t *testing.T) {
	files := newFakeFileCache()
	files.commit("express-4.18.2.tgz", "cached-bytes")
	fetcher := &countingFetcher{files: files}
	coordinator := NewCoordinator(files, fetcher)

	var buf bytes.Buffer
	err := coordinator.Resolve(context.Background(), "express", "4.18.2", "express-4.18.2.tgz", &buf)
	require.NoError(t, err)

	assert.Equal(t, "cached-bytes", buf.String())
	assert.EqualValues(t, 0, atomic.LoadInt32(&fetcher.calls))
}

// flakyFetcher fails every call up to (and including) failUntil, then
// succeeds. Used to exercise §4.4 step 2: a waiter that only observed a
// failed attempt must fall through and register a fresh one rather than
// inheriting the failure.
type flakyFetcher struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	files     *fakeFileCache
}

func (f *flakyFetcher) FetchAndVerify(ctx context.Context, name, version, filename string, dst io.Writer) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call <= f.failUntil {
		return fmt.Errorf("upstream flaked on attempt %d", call)
	}
	body := "tarball-bytes-for-" + filename
	f.files.commit(filename, body)
	_, err := dst.Write([]byte(body))
	return err
}

func TestCoordinatorLeaderFailureIsNotRetried(t *testing.T) {
	files := newFakeFileCache()
	fetcher := &flakyFetcher{failUntil: 1, files: files}
	coordinator := NewCoordinator(files, fetcher)

	var buf bytes.Buffer
	err := coordinator.Resolve(context.Background(), "left-pad", "1.3.0", "left-pad-1.3.0.tgz", &buf)
	require.Error(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Empty(t, buf.String())
}

// racyFileCache reports a filename as missing exactly once, then as
// present for every subsequent check — standing in for a concurrent,
// separately-completed download that commits the file between Resolve's
// outer existence check and its singleflight closure running.
type racyFileCache struct {
	*fakeFileCache
	filename string
	missOnce bool
}

func (f *racyFileCache) TarballExists(filename string) bool {
	if filename == f.filename && !f.missOnce {
		f.missOnce = true
		return false
	}
	return f.fakeFileCache.TarballExists(filename)
}

func TestCoordinatorLeaderStreamsFileCommittedDuringRegistrationRace(t *testing.T) {
	files := newFakeFileCache()
	files.commit("left-pad-1.3.0.tgz", "raced-in-bytes")
	racy := &racyFileCache{fakeFileCache: files, filename: "left-pad-1.3.0.tgz"}
	fetcher := &countingFetcher{files: files}
	coordinator := NewCoordinator(racy, fetcher)

	var buf bytes.Buffer
	err := coordinator.Resolve(context.Background(), "left-pad", "1.3.0", "left-pad-1.3.0.tgz", &buf)
	require.NoError(t, err)
	assert.Equal(t, "raced-in-bytes", buf.String())
	assert.EqualValues(t, 0, atomic.LoadInt32(&fetcher.calls))
}

func TestCoordinatorWaiterRetriesAfterLeaderFailure(t *testing.T) {
	files := newFakeFileCache()
	fetcher := &flakyFetcher{failUntil: 1, files: files}
	coordinator := NewCoordinator(files, fetcher)

	// The first call is the leader and fails; a second, sequential call
	// (standing in for a waiter that observed the failed future) must
	// register its own attempt rather than surface the same error.
	var first bytes.Buffer
	err := coordinator.Resolve(context.Background(), "left-pad", "1.3.0", "left-pad-1.3.0.tgz", &first)
	require.Error(t, err)

	var second bytes.Buffer
	err = coordinator.Resolve(context.Background(), "left-pad", "1.3.0", "left-pad-1.3.0.tgz", &second)
	require.NoError(t, err)
	assert.Equal(t, "tarball-bytes-for-left-pad-1.3.0.tgz", second.String())
	assert.Equal(t, 2, fetcher.calls)
}
