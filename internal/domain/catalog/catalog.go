// Package catalog is the static game configuration table. A session is
// coordinated only when its id has an entry here.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

var ErrUnknownFormat = errors.New("unknown catalog format")

//go:embed default.yaml
var defaultTable []byte

// Entry is the configuration of one game.
type Entry struct {
	ID       int      `yaml:"id" toml:"id" json:"id"`
	Name     string   `yaml:"name" toml:"name" json:"name"`
	Features []string `yaml:"features" toml:"features" json:"features"`
}

type document struct {
	Games []Entry `yaml:"games" toml:"games"`
}

// Catalog maps game ids to their configuration. It is immutable after
// construction and safe for concurrent reads.
type Catalog struct {
	entries map[int]Entry
}

// New builds a catalog from entries, rejecting invalid or duplicate ids.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[int]Entry, len(entries))}
	for _, e := range entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("catalog entry %q: id must be positive", e.Name)
		}
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("catalog entry %d: name is required", e.ID)
		}
		if _, dup := c.entries[e.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id", e.ID)
		}
		e.Features = append([]string(nil), e.Features...)
		c.entries[e.ID] = e
	}
	return c, nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultTable, "yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file, choosing the decoder by extension
// (.yaml, .yml or .toml).
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog document in the given format.
func Parse(data []byte, format string) (*Catalog, error) {
	var doc document
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return New(doc.Games)
}

// ConfigFor returns the configuration for a game id.
func (c *Catalog) ConfigFor(id int) (Entry, bool) {
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	e.Features = append([]string(nil), e.Features...)
	return e, true
}

// Entries returns all entries ordered by id.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of configured games.
func (c *Catalog) Len() int {
	return len(c.entries)
}
