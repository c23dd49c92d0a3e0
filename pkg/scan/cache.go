package scan

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/grafana/elfdiff/pkg/elfio"
)

const defaultCacheSize = 1024

// parser reads binaries and keeps their parsed headers keyed by a digest of
// the content. Old and new trees usually share most of their binaries.
type parser struct {
	fs      afero.Fs
	cache   *lru.Cache[uint64, *elfio.File]
	metrics *metrics
}

func newParser(fs afero.Fs, size int, m *metrics) (*parser, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[uint64, *elfio.File](size)
	if err != nil {
		return nil, err
	}
	return &parser{fs: fs, cache: cache, metrics: m}, nil
}

// parse returns the headers of the binary at path. Errors wrap
// elfio.ErrNotBinary for files that are not ELF images.
func (p *parser) parse(path string) (*elfio.File, error) {
	format, err := elfio.SniffFile(p.fs, path)
	if err != nil {
		return nil, err
	}
	if format != elfio.FormatELF {
		return nil, fmt.Errorf("%w: %s is %s", elfio.ErrNotBinary, path, format)
	}

	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	key := xxhash.Sum64(data)
	if f, ok := p.cache.Get(key); ok {
		p.metrics.cacheOps.WithLabelValues(cacheHit).Inc()
		return withPath(f, path), nil
	}
	p.metrics.cacheOps.WithLabelValues(cacheMiss).Inc()

	start := time.Now()
	f, err := elfio.NewFile(bytes.NewReader(data), int64(len(data)))
	p.metrics.parseDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if m, ok := err.(*elfio.MalformedError); ok {
			m.Path = path
		}
		return nil, err
	}
	p.cache.Add(key, f)
	return withPath(f, path), nil
}

// withPath returns a shallow copy of f. The section and program tables are
// shared and must not be modified.
func withPath(f *elfio.File, path string) *elfio.File {
	cp := *f
	cp.Path = path
	return &cp
}
