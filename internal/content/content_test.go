package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/chat"
)

const sampleSite = `
greeting = "Hello from the file"
teasers = ["only teaser", "   "]

[[email_templates]]
title = "Hire"
prompt = "Write a hiring email"

[[email_templates]]
title = "Empty"
prompt = ""
`

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	site, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, chat.DefaultGreeting, site.Greeting)
	require.Len(t, site.Teasers, 9)
	require.NotEmpty(t, site.EmailTemplates)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSite), 0o644))

	site, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Hello from the file", site.Greeting)
	require.Equal(t, []string{"only teaser"}, site.Teasers)
	require.Equal(t, []EmailTemplate{{Title: "Hire", Prompt: "Write a hiring email"}}, site.EmailTemplates)
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.toml")
	require.NoError(t, os.WriteFile(path, []byte("greeting = "), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestStoreAccessors(t *testing.T) {
	s := NewStore(nil)
	require.Equal(t, chat.DefaultGreeting, s.Greeting())
	require.Contains(t, Defaults().Teasers, s.Teaser())

	s.Set(&Site{Greeting: "hi"})
	require.Equal(t, "hi", s.Greeting())
	require.Empty(t, s.Teaser())

	s.Set(nil)
	require.Equal(t, "hi", s.Greeting())

	templates := NewStore(nil).EmailTemplates()
	templates[0].Title = "mutated"
	require.NotEqual(t, "mutated", Defaults().EmailTemplates[0].Title)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.toml")
	require.NoError(t, os.WriteFile(path, []byte(`greeting = "first"`), 0o644))

	site, err := Load(path)
	require.NoError(t, err)
	store := NewStore(site)

	w, err := NewWatcher(path, store, 20*time.Millisecond, nil)
	require.NoError(t, err)

	reloaded := make(chan *Site, 4)
	w.OnReload(func(s *Site) { reloaded <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte(`greeting = "nope"`), 0o644))
	replaceFile(t, path, `greeting = "second"`)

	deadline := time.After(3 * time.Second)
	for store.Greeting() != "second" {
		select {
		case <-reloaded:
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}

	// A broken edit keeps the last good content.
	replaceFile(t, path, "greeting = ")
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, "second", store.Greeting())
}

// replaceFile swaps the file in with a rename, the way most editors save.
func replaceFile(t *testing.T, path, data string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(data), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}
