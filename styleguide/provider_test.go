package styleguide

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGuide(t *testing.T, dir, id, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+fileSuffix), []byte(text), 0o644))
}

func TestDirProviderGet(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "techcorp", "Voice: bold, optimistic.")

	p := NewDirProvider(dir, nil)
	g, err := p.Get("  TechCorp ")
	require.NoError(t, err)
	assert.Equal(t, "techcorp", g.ID)
	assert.Equal(t, "Voice: bold, optimistic.", g.Text)
}

func TestDirProviderNotFoundListsAvailable(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "ecolife", "green")
	writeGuide(t, dir, "techcorp", "bold")

	p := NewDirProvider(dir, nil)
	_, err := p.Get("acme")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ecolife, techcorp")
}

func TestDirProviderRejectsTraversal(t *testing.T) {
	p := NewDirProvider(t.TempDir(), nil)
	_, err := p.Get("../secrets")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirProviderCachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "techcorp", "v1")
	p := NewDirProvider(dir, nil)

	g, err := p.Get("techcorp")
	require.NoError(t, err)
	assert.Equal(t, "v1", g.Text)

	writeGuide(t, dir, "techcorp", "v2")
	g, _ = p.Get("techcorp")
	assert.Equal(t, "v1", g.Text)

	p.Invalidate("techcorp")
	g, _ = p.Get("techcorp")
	assert.Equal(t, "v2", g.Text)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "zeta", "z")
	writeGuide(t, dir, "alpha", "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ids, err := NewDirProvider(dir, nil).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, ids)

	ids, err = NewDirProvider(filepath.Join(dir, "missing"), nil).List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "techcorp", "bold")
	p := NewDirProvider(dir, nil)

	g, err := Resolve(p, "")
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = Resolve(p, "techcorp")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "bold", g.Text)

	_, err = Resolve(p, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(nil, "techcorp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatchInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	writeGuide(t, dir, "techcorp", "v1")
	p := NewDirProvider(dir, nil)
	_, err := p.Get("techcorp")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeGuide(t, dir, "techcorp", "v2")

	assert.Eventually(t, func() bool {
		g, err := p.Get("techcorp")
		return err == nil && g.Text == "v2"
	}, 3*time.Second, 20*time.Millisecond)
}
