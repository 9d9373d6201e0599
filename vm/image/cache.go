package image

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/msq-lang/msq/vm"
)

// Cache stores compiled images on disk. Keys are opaque digests of the
// source; the msq CLI uses hash.CacheKey.
type Cache struct {
	dir string
	log commonlog.Logger
}

// NewCache creates a cache rooted at dir. The directory is created on
// first write.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, log: commonlog.GetLogger("msq.image")}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns where the image for fingerprint lives.
func (c *Cache) Path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+Extension)
}

// Get returns the cached program for fingerprint. ok is false on a miss.
// A corrupt entry is reported as an error and left in place.
func (c *Cache) Get(fingerprint string) (prog *vm.Program, ok bool, err error) {
	img, err := ReadFile(c.Path(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Debugf("cache miss %s", fingerprint)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("image cache: %s: %w", fingerprint, err)
	}
	if img.Fingerprint != fingerprint {
		return nil, false, fmt.Errorf("image cache: %s holds fingerprint %s", fingerprint, img.Fingerprint)
	}
	c.log.Debugf("cache hit %s", fingerprint)
	return img.Program, true, nil
}

// Put stores prog under fingerprint. The file is written to a temporary
// name first so readers never see a partial image.
func (c *Cache) Put(fingerprint, source string, prog *vm.Program) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("image cache: %w", err)
	}
	data, err := Marshal(&Image{Fingerprint: fingerprint, Source: source, Program: prog})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, fingerprint+".*.tmp")
	if err != nil {
		return fmt.Errorf("image cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("image cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("image cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(fingerprint)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("image cache: %w", err)
	}
	c.log.Debugf("cached %s", fingerprint)
	return nil
}
