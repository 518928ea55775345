// Package voices loads per-backend voice catalogs from YAML files.
package voices

import (
	"errors"
	"fmt"
)

// ErrUnknownVoice is returned when a voice is not in the backend's catalog.
var ErrUnknownVoice = errors.New("unknown voice")

// Entry is one selectable voice.
type Entry struct {
	ID       string `yaml:"id"       json:"id"`
	Name     string `yaml:"name"     json:"name"`
	Language string `yaml:"language" json:"language"`
	Default  bool   `yaml:"default"  json:"default,omitempty"`
}

// Catalog lists the voices offered for one TTS backend.
type Catalog struct {
	Backend string  `yaml:"backend" json:"backend"`
	Voices  []Entry `yaml:"voices"  json:"voices"`
}

// Validate checks that voice ids are present and unique and that at most
// one voice is the default.
func (c *Catalog) Validate() error {
	if len(c.Voices) == 0 {
		return fmt.Errorf("catalog %q lists no voices", c.Backend)
	}
	seen := make(map[string]bool, len(c.Voices))
	defaults := 0
	for i, v := range c.Voices {
		if v.ID == "" {
			return fmt.Errorf("catalog %q: voice %d has no id", c.Backend, i)
		}
		if seen[v.ID] {
			return fmt.Errorf("catalog %q: duplicate voice %q", c.Backend, v.ID)
		}
		seen[v.ID] = true
		if v.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("catalog %q: %d default voices", c.Backend, defaults)
	}
	return nil
}

// Default returns the default voice id, or the first voice when none is
// marked.
func (c *Catalog) Default() string {
	for _, v := range c.Voices {
		if v.Default {
			return v.ID
		}
	}
	return c.Voices[0].ID
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	for _, v := range c.Voices {
		if v.ID == id {
			return true
		}
	}
	return false
}
