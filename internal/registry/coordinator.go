package registry

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Coordinator implements the Download Coordinator's single-flight
// semantics (§4.4): for any tarball filename, at most one upstream fetch
// is active at any instant, and every waiter ultimately either streams
// the file or receives an error.
//
// golang.org/x/sync/singleflight is used directly rather than a
// hand-rolled mutex+map for the "register on first caller, every other
// caller waits, remove on exit" part of the contract, but singleflight's
// Do shares one (val, err) result across every caller joined into a
// single in-flight call — it has no notion of a waiter falling through
// to its own attempt when that call failed. Step 2 of §4.4 requires
// exactly that fallthrough, so Resolve wraps Do in a loop: the goroutine
// whose closure actually ran (the leader) never retries — its client
// may already have partial bytes — but every waiter that only observed
// the leader's failure loops back and registers a fresh attempt itself.
type Coordinator struct {
	group   singleflight.Group
	files   driven.FileCache
	fetcher Fetcher
}

// Fetcher performs the actual upstream streaming tee (§4.5) for one
// filename, teeing bytes into dst as they arrive. It is implemented by
// the proxy service so the coordinator itself stays free of
// verification and metadata concerns.
type Fetcher interface {
	FetchAndVerify(ctx context.Context, name, version, filename string, dst io.Writer) error
}

// NewCoordinator constructs a Download Coordinator.
func NewCoordinator(files driven.FileCache, fetcher Fetcher) *Coordinator {
	return &Coordinator{files: files, fetcher: fetcher}
}

// Resolve implements the algorithm of §4.4: check disk, consult the
// single-flight map (wait if present), else register and fetch. dst
// receives the tarball bytes directly — on a cache hit or after waiting
// on someone else's completed fetch, Resolve streams the committed file
// into dst itself; on a miss where this goroutine becomes the leader,
// the bytes reach dst live as part of the upstream tee (§4.5), before
// the file is even fully committed.
func (c *Coordinator) Resolve(ctx context.Context, name, version, filename string, dst io.Writer) error {
	if c.files.TarballExists(filename) {
		return c.streamFromDisk(filename, dst)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		leader := false
		alreadyCached := false
		_, err, _ := c.group.Do(filename, func() (any, error) {
			leader = true
			// Re-check in case a prior in-flight fetch for this filename
			// completed between our first check above and registration here.
			// That file was written by someone else's fetch, not this tee,
			// so it still needs to be streamed into dst below.
			if c.files.TarballExists(filename) {
				alreadyCached = true
				return nil, nil
			}
			return nil, c.fetcher.FetchAndVerify(ctx, name, version, filename, dst)
		})

		if leader {
			// This goroutine's closure ran. On failure this request's own
			// dst may already carry partial bytes, so there is no point
			// falling through to a retry here — that is left to whichever
			// waiters see the failure below. On success, either the
			// closure found the file already cached (alreadyCached) and
			// dst still needs the bytes, or it called FetchAndVerify,
			// which already streamed them straight into dst as part of
			// the tee and there is nothing left to copy.
			if err != nil {
				return fmt.Errorf("registry: fetch %s: %w", filename, err)
			}
			if alreadyCached {
				return c.streamFromDisk(filename, dst)
			}
			return nil
		}

		if err == nil {
			if c.files.TarballExists(filename) {
				return c.streamFromDisk(filename, dst)
			}
			// The leader reported success without leaving a file behind;
			// treat this the same as a failed attempt and register our own.
			continue
		}

		// The attempt we were waiting on failed and none of our own bytes
		// have been sent yet (leader is false), so per §4.4 step 2 fall
		// through and register a new attempt instead of inheriting the
		// failure.
	}
}

func (c *Coordinator) streamFromDisk(filename string, dst io.Writer) error {
	rc, err := c.files.OpenTarball(filename)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(dst, rc)
	return err
}
