// Package manifest handles msq.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked for in project directories.
const FileName = "msq.toml"

// Manifest represents an msq.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Source  Source        `toml:"source"`
	Engine  EngineConfig  `toml:"engine"`
	Log     LogConfig     `toml:"log"`
	History HistoryConfig `toml:"history"`
	Cache   CacheConfig   `toml:"cache"`
	Server  ServerConfig  `toml:"server"`

	// Dir is the directory containing the msq.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the program to run.
type Source struct {
	Entry string `toml:"entry"`
}

// EngineConfig configures execution.
type EngineConfig struct {
	MaxDepth int  `toml:"max-depth"`
	Dump     bool `toml:"dump"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Database string `toml:"database"`
}

// CacheConfig configures the compiled-image cache.
type CacheConfig struct {
	Dir string `toml:"dir"`
}

// ServerConfig configures msq serve.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Defaults
const (
	DefaultEntry    = "main.msq"
	DefaultMaxDepth = 10000
	DefaultDatabase = ".msq/history.db"
	DefaultCacheDir = ".msq/cache"
	DefaultAddr     = ":4567"
)

// Default returns the configuration used when no msq.toml exists. Dir is
// the current directory.
func Default() *Manifest {
	m := &Manifest{Dir: "."}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.Engine.MaxDepth <= 0 {
		m.Engine.MaxDepth = DefaultMaxDepth
	}
	if m.History.Database == "" {
		m.History.Database = DefaultDatabase
	}
	if m.Cache.Dir == "" {
		m.Cache.Dir = DefaultCacheDir
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// Load parses an msq.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find an msq.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes m as msq.toml in dir. An existing file is not replaced.
func Write(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// HistoryPath returns the path of the run-history database.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.History.Database)
}

// CacheDir returns the path of the image cache.
func (m *Manifest) CacheDir() string {
	return m.resolve(m.Cache.Dir)
}

// LogFile returns the configured log file, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}
