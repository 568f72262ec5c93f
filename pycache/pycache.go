// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package pycache stores compiled artifacts beside their sources and loads
// them back while they are fresh.
package pycache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/minipyc/minipyc"
	"github.com/minipyc/minipyc/encoder"
)

// DefaultDir is the default cache directory name.
const DefaultDir = "__pycache__"

// Extension of artifact files.
const Extension = ".pyc"

// DefaultTag is the default cache tag, the interpreter name and the artifact
// format version.
var DefaultTag = minipyc.Name + "-" + strconv.Itoa(int(encoder.FormatVersion))

// Options configures cache paths and compilation.
type Options struct {
	// Dir is the cache directory name, relative to the source directory.
	Dir string
	// Tag is inserted between the source base name and the extension.
	Tag string
	// CheckHash selects hash based invalidation keys.
	CheckHash bool
	// Compiler options, Filename is set per source.
	Compiler minipyc.CompilerOptions
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.Tag == "" {
		o.Tag = DefaultTag
	}
	return o
}

func (o Options) keyMode() encoder.KeyMode {
	if o.CheckHash {
		return encoder.HashKey
	}
	return encoder.TimestampKey
}

// CachePath returns the artifact path of source.
func CachePath(source string, opts Options) string {
	opts = opts.withDefaults()
	dir, file := filepath.Split(source)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	return filepath.Join(dir, opts.Dir, base+"."+opts.Tag+Extension)
}

// Compile compiles source and writes its artifact, returning the artifact
// path.
func Compile(source string, opts Options) (string, error) {
	src, info, err := readSource(source)
	if err != nil {
		return "", err
	}
	_, path, err := compileAndStore(source, src, info, opts.withDefaults())
	if err != nil {
		return "", err
	}
	return path, nil
}

func readSource(source string) ([]byte, fs.FileInfo, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s: is a directory", source)
	}
	src, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return src, info, nil
}

func compileAndStore(source string, src []byte, info fs.FileInfo,
	opts Options) (*minipyc.CodeUnit, string, error) {

	copts := opts.Compiler
	copts.Filename = source
	unit, err := minipyc.Compile(src, copts)
	if err != nil {
		return nil, "", err
	}

	key := encoder.NewInvalidationKey(src, info.ModTime(), opts.keyMode())
	data, err := encoder.Write(unit, key)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", source, err)
	}

	path := CachePath(source, opts)
	if err = writeFileAtomic(path, data, 0o644); err != nil {
		return unit, "", fmt.Errorf("write %s: %w", path, err)
	}
	return unit, path, nil
}

// Stats counts how the Loader satisfied its Load calls.
type Stats struct {
	// Memory is the number of units found in the in-memory cache.
	Memory int
	// Disk is the number of fresh artifacts read from the cache directory.
	Disk int
	// Compiled is the number of sources compiled.
	Compiled int
}

type memKey struct {
	filename string
	hash     [32]byte
}

// Loader loads code units of sources, preferring the in-memory cache, then
// fresh artifacts. Stale or unreadable artifacts are replaced. Loader is safe
// for concurrent use.
type Loader struct {
	opts  Options
	mu    sync.Mutex
	units map[memKey]*minipyc.CodeUnit
	stats Stats
}

// NewLoader creates a new Loader.
func NewLoader(opts Options) *Loader {
	return &Loader{
		opts:  opts.withDefaults(),
		units: make(map[memKey]*minipyc.CodeUnit),
	}
}

// Options returns the options of the loader.
func (l *Loader) Options() Options {
	return l.opts
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Load returns the code unit of source. A failed artifact write does not
// fail Load, the compiled unit is still returned.
func (l *Loader) Load(source string) (*minipyc.CodeUnit, error) {
	src, info, err := readSource(source)
	if err != nil {
		return nil, err
	}

	mk := memKey{
		filename: source,
		hash:     encoder.NewInvalidationKey(src, info.ModTime(), encoder.HashKey).Hash,
	}
	if abs, err := filepath.Abs(source); err == nil {
		mk.filename = abs
	}

	l.mu.Lock()
	if unit, ok := l.units[mk]; ok {
		l.stats.Memory++
		l.mu.Unlock()
		return unit, nil
	}
	l.mu.Unlock()

	unit, fromDisk := l.loadArtifact(source, src, info)
	if unit == nil {
		unit, _, err = compileAndStore(source, src, info, l.opts)
		if unit == nil {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if fromDisk {
		l.stats.Disk++
	} else {
		l.stats.Compiled++
	}
	l.units[mk] = unit
	return unit, nil
}

func (l *Loader) loadArtifact(source string, src []byte,
	info fs.FileInfo) (*minipyc.CodeUnit, bool) {

	data, err := os.ReadFile(CachePath(source, l.opts))
	if err != nil {
		return nil, false
	}
	key, err := encoder.ReadKey(data)
	if err != nil {
		return nil, false
	}
	want := encoder.NewInvalidationKey(src, info.ModTime(), l.opts.keyMode())
	if !key.Matches(want) {
		return nil, false
	}
	a, err := encoder.Read(data)
	if err != nil {
		return nil, false
	}
	if a.Main.Filename != source {
		a.Main = withFilename(a.Main, source)
	}
	return a.Main, true
}

// withFilename sets the filename of the unit and its nested units, an
// artifact may be loaded through a different path than it was compiled
// with.
func withFilename(unit *minipyc.CodeUnit, filename string) *minipyc.CodeUnit {
	unit.Filename = filename
	for _, c := range unit.Constants {
		if cu, ok := c.(*minipyc.CodeUnit); ok {
			withFilename(cu, filename)
		}
	}
	return unit
}

// IsStale reports whether the artifact of source is missing or does not match
// the source.
func IsStale(source string, opts Options) (bool, error) {
	opts = opts.withDefaults()
	src, info, err := readSource(source)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(CachePath(source, opts))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	key, err := encoder.ReadKey(data)
	if err != nil {
		return true, nil
	}
	return !key.Matches(encoder.NewInvalidationKey(src, info.ModTime(), opts.keyMode())), nil
}
