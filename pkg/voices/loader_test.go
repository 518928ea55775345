package voices

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const openaiCatalog = `
backend: openai
voices:
  - id: alloy
    name: Alloy
    language: en
  - id: nova
    name: Nova
    language: en
    default: true
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoaderLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiCatalog)
	writeFile(t, dir, "google.yml", "voices:\n  - id: en-US-Neural2-A\n")
	writeFile(t, dir, "README.md", "ignored")

	loader := NewLoader(dir)
	catalogs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(catalogs) != 2 {
		t.Fatalf("loaded %d catalogs, want 2", len(catalogs))
	}

	g, ok := loader.Get("google")
	if !ok {
		t.Fatal("backend name should default to the file name")
	}
	if g.Default() != "en-US-Neural2-A" {
		t.Errorf("google default = %q", g.Default())
	}
	if c, _ := loader.Get("openai"); c.Default() != "nova" {
		t.Errorf("openai default = %q", c.Default())
	}
}

func TestLoaderRejectsInvalidCatalogs(t *testing.T) {
	tests := map[string]string{
		"empty":     "backend: x\nvoices: []\n",
		"duplicate": "backend: x\nvoices:\n  - id: a\n  - id: a\n",
		"no id":     "backend: x\nvoices:\n  - name: Nameless\n",
		"defaults":  "backend: x\nvoices:\n  - id: a\n    default: true\n  - id: b\n    default: true\n",
		"bad yaml":  "backend: [unterminated\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "x.yaml", content)
			if _, err := NewLoader(dir).LoadAll(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiCatalog)
	loader := NewLoader(dir)
	if _, err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	tests := []struct {
		backend, voice string
		want           string
		wantErr        bool
	}{
		{"openai", "", "nova", false},
		{"openai", "alloy", "alloy", false},
		{"openai", "shimmer", "", true},
		{"remote", "anything", "anything", false},
	}
	for _, tt := range tests {
		got, err := loader.Resolve(tt.backend, tt.voice)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownVoice) {
				t.Errorf("Resolve(%s, %s) error = %v", tt.backend, tt.voice, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%s, %s) = %q, %v; want %q", tt.backend, tt.voice, got, err, tt.want)
		}
	}
}

func TestWatchAndReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai.yaml", openaiCatalog)
	loader := NewLoader(dir)
	if _, err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	done := make(chan struct{})
	defer close(done)
	go loader.WatchAndReload(done)
	time.Sleep(50 * time.Millisecond)

	writeFile(t, dir, "elevenlabs.yaml", "voices:\n  - id: rachel\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := loader.Get("elevenlabs"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("new catalog was not picked up")
}
