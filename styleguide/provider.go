package styleguide

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"marketing_post_refiner/logging"
)

const fileSuffix = "_brand_voice.txt"

// ErrNotFound is returned for an identifier with no guideline file.
var ErrNotFound = errors.New("style guideline not found")

// Guideline is the opaque guideline text for one brand.
type Guideline struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Provider looks up guideline text by identifier.
type Provider interface {
	Get(id string) (Guideline, error)
	List() ([]string, error)
}

// Resolve treats an empty id as "no guideline" and returns nil without error.
// Only a non-empty, unknown id is an error.
func Resolve(p Provider, id string) (*Guideline, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %q (no provider configured)", ErrNotFound, id)
	}
	g, err := p.Get(id)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// DirProvider reads "<id>_brand_voice.txt" files from a directory and caches
// their contents until the file changes.
type DirProvider struct {
	dir    string
	logger *logging.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]string
}

// NewDirProvider does not require dir to exist yet.
func NewDirProvider(dir string, logger *logging.Logger) *DirProvider {
	return &DirProvider{
		dir:    dir,
		logger: logger.Named("styleguide"),
		cache:  make(map[string]string),
	}
}

// Dir returns the directory guidelines are read from.
func (p *DirProvider) Dir() string { return p.dir }

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Get returns the guideline for id, loading it from disk on first use.
func (p *DirProvider) Get(id string) (Guideline, error) {
	id = normalizeID(id)
	if id == "" {
		return Guideline{}, errors.New("style guideline id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return Guideline{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	p.mu.RLock()
	text, ok := p.cache[id]
	p.mu.RUnlock()
	if ok {
		return Guideline{ID: id, Text: text}, nil
	}

	v, err, _ := p.group.Do(id, func() (any, error) {
		return p.load(id)
	})
	if err != nil {
		return Guideline{}, err
	}
	return Guideline{ID: id, Text: v.(string)}, nil
}

func (p *DirProvider) load(id string) (string, error) {
	path := filepath.Join(p.dir, id+fileSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			available, _ := p.List()
			return "", fmt.Errorf("%w: %q (available: %s)", ErrNotFound, id, strings.Join(available, ", "))
		}
		return "", fmt.Errorf("read style guideline %s: %w", path, err)
	}
	text := string(data)
	p.mu.Lock()
	p.cache[id] = text
	p.mu.Unlock()
	p.logger.Infof("loaded %s (%d chars)", filepath.Base(path), len(text))
	return text, nil
}

// List returns the sorted identifiers present in the directory.
func (p *DirProvider) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warnf("guideline directory does not exist: %s", p.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("list style guidelines: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Invalidate drops a cached guideline, or all of them when id is empty.
func (p *DirProvider) Invalidate(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == "" {
		p.cache = make(map[string]string)
		return
	}
	delete(p.cache, normalizeID(id))
}

// idFromPath maps a changed file back to its guideline id.
func idFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, fileSuffix), true
}
