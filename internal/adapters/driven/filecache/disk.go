package filecache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileCache = (*DiskCache)(nil)

// DiskCache implements driven.FileCache as a single directory holding
// "{filename}.tgz" tarball files and "{package}.json" rewritten
// metadata documents (§6's on-disk layout). Temp files used while a
// tarball is being written live in the same directory under a ".part"
// suffix plus a unique token, so the final rename is always same-
// filesystem and therefore atomic.
type DiskCache struct {
	dir string
}

// NewDiskCache constructs a DiskCache rooted at dir, creating it if
// necessary.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filecache: create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// LocalPath returns the on-disk path for a committed tarball filename.
// Used by the Integrity Verifier to hash the file directly, and by
// DiskCache's own methods.
func (c *DiskCache) LocalPath(filename string) string {
	return filepath.Join(c.dir, filename)
}

func (c *DiskCache) metadataPath(packageName string) string {
	return filepath.Join(c.dir, sanitizePackageName(packageName)+".json")
}

// sanitizePackageName replaces the scope separator in scoped package
// names (e.g. "@scope/name") so the metadata filename never contains a
// path separator.
func sanitizePackageName(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

func (c *DiskCache) TarballExists(filename string) bool {
	info, err := os.Stat(c.LocalPath(filename))
	return err == nil && !info.IsDir()
}

func (c *DiskCache) OpenTarball(filename string) (io.ReadCloser, error) {
	f, err := os.Open(c.LocalPath(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("filecache: open tarball %s: %w", filename, err)
	}
	return f, nil
}

// CreateTempTarball returns *os.File directly: it already satisfies
// driven.WriteCloserNamed via its promoted Write/Close/Name methods.
func (c *DiskCache) CreateTempTarball(filename string) (driven.WriteCloserNamed, error) {
	f, err := os.CreateTemp(c.dir, sanitizePackageName(filename)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("filecache: create temp tarball: %w", err)
	}
	return f, nil
}

func (c *DiskCache) CommitTarball(tempPath, filename string) error {
	if err := os.Rename(tempPath, c.LocalPath(filename)); err != nil {
		return fmt.Errorf("filecache: commit tarball %s: %w", filename, err)
	}
	return nil
}

func (c *DiskCache) DiscardTemp(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filecache: discard temp %s: %w", tempPath, err)
	}
	return nil
}

func (c *DiskCache) DeleteTarball(filename string) error {
	if err := os.Remove(c.LocalPath(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filecache: delete tarball %s: %w", filename, err)
	}
	return nil
}

func (c *DiskCache) ReadMetadata(packageName string) ([]byte, error) {
	data, err := os.ReadFile(c.metadataPath(packageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("filecache: read metadata %s: %w", packageName, err)
	}
	return data, nil
}

func (c *DiskCache) WriteMetadata(packageName string, data []byte) error {
	path := c.metadataPath(packageName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filecache: write metadata %s: %w", packageName, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("filecache: commit metadata %s: %w", packageName, err)
	}
	return nil
}

func (c *DiskCache) ListTarballFilenames() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("filecache: list cache dir: %w", err)
	}
	var filenames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".tgz") {
			filenames = append(filenames, e.Name())
		}
	}
	return filenames, nil
}
