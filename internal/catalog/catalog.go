// Package catalog loads the static list of listening challenges.
//
// The catalog is read once at startup and is immutable for the lifetime of
// the process. Challenge ids are NFC-normalized so ids coming from the
// catalog file, telemetry, and persisted blobs compare equal regardless of
// how the source encoded them.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Difficulty is a display tag on a challenge.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Challenge is a listenable track with a point reward.
type Challenge struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Artist      string     `yaml:"artist" json:"artist"`
	Duration    float64    `yaml:"duration" json:"duration"` // seconds
	BasePoints  int        `yaml:"points" json:"points"`
	Difficulty  Difficulty `yaml:"difficulty" json:"difficulty"`
	AudioURL    string     `yaml:"audio_url,omitempty" json:"audioUrl,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog is an ordered, read-only set of challenges.
type Catalog struct {
	items []Challenge
	index map[string]int
}

type file struct {
	Challenges []Challenge `yaml:"challenges"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog invalid: %v", err))
	}
	return c
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Challenges)
}

// New validates challenges and builds a catalog preserving their order.
func New(challenges []Challenge) (*Catalog, error) {
	c := &Catalog{
		items: make([]Challenge, 0, len(challenges)),
		index: make(map[string]int, len(challenges)),
	}

	for i, ch := range challenges {
		ch.ID = NormalizeID(ch.ID)
		if ch.ID == "" {
			return nil, fmt.Errorf("challenge[%d]: id is required", i)
		}
		if _, dup := c.index[ch.ID]; dup {
			return nil, fmt.Errorf("challenge[%d]: duplicate id %q", i, ch.ID)
		}
		if ch.Duration <= 0 {
			return nil, fmt.Errorf("challenge %q: duration must be > 0, got %v", ch.ID, ch.Duration)
		}
		if ch.BasePoints < 0 {
			return nil, fmt.Errorf("challenge %q: points must be >= 0, got %d", ch.ID, ch.BasePoints)
		}
		switch ch.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		case "":
			ch.Difficulty = DifficultyEasy
		default:
			return nil, fmt.Errorf("challenge %q: unknown difficulty %q", ch.ID, ch.Difficulty)
		}

		c.index[ch.ID] = len(c.items)
		c.items = append(c.items, ch)
	}

	return c, nil
}

// NormalizeID returns the NFC form of a challenge id.
func NormalizeID(id string) string {
	return norm.NFC.String(id)
}

// Get returns the challenge with the given id.
func (c *Catalog) Get(id string) (Challenge, bool) {
	i, ok := c.index[NormalizeID(id)]
	if !ok {
		return Challenge{}, false
	}
	return c.items[i], true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[NormalizeID(id)]
	return ok
}

// All returns the challenges in catalog order. The slice is a copy.
func (c *Catalog) All() []Challenge {
	out := make([]Challenge, len(c.items))
	copy(out, c.items)
	return out
}

// IDs returns challenge ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.items))
	for i, ch := range c.items {
		ids[i] = ch.ID
	}
	return ids
}

// Len returns the number of challenges.
func (c *Catalog) Len() int {
	return len(c.items)
}
