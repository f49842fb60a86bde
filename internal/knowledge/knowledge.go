// Package knowledge holds the static Houston preparedness reference data:
// disaster checklists, neighborhood risk, and emergency contacts.
package knowledge

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var knowledgeYAML []byte

// Disaster is the static profile of one disaster type.
type Disaster struct {
	Kind      string   `yaml:"kind" json:"kind"`
	Name      string   `yaml:"name" json:"name"`
	Icon      string   `yaml:"icon" json:"icon"`
	Color     string   `yaml:"color" json:"color"`
	Checklist []string `yaml:"checklist" json:"checklist"`
}

// Neighborhood carries the flood risk and hurricane evacuation zone of an
// area. EvacuationZone is "None" outside the surge zones.
type Neighborhood struct {
	FloodRisk      string `yaml:"floodRisk" json:"floodRisk"`
	EvacuationZone string `yaml:"evacuationZone" json:"evacuationZone"`
}

type Contact struct {
	Name   string `yaml:"name" json:"name"`
	Number string `yaml:"number" json:"number"`
}

// Season lists checklist items relevant in the given calendar months.
type Season struct {
	Name   string       `yaml:"name" json:"name"`
	Months []time.Month `yaml:"months" json:"months"`
	Items  []string     `yaml:"items" json:"items"`
}

// Base is the parsed, read-only knowledge base.
type Base struct {
	Disasters     []Disaster              `yaml:"disasters"`
	Household     map[string][]string     `yaml:"household"`
	Neighborhoods map[string]Neighborhood `yaml:"neighborhoods"`
	ContactList   []Contact               `yaml:"contacts"`
	Seasonal      []Season                `yaml:"seasonal"`

	byKind map[string]int
}

// Parse decodes a knowledge document.
func Parse(data []byte) (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing knowledge base: %w", err)
	}
	b.byKind = make(map[string]int, len(b.Disasters))
	for i, d := range b.Disasters {
		if d.Kind == "" {
			return nil, fmt.Errorf("disaster %d has no kind", i)
		}
		if _, dup := b.byKind[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate disaster kind %q", d.Kind)
		}
		b.byKind[d.Kind] = i
	}
	return &b, nil
}

// Load parses the embedded knowledge base.
func Load() (*Base, error) {
	return Parse(knowledgeYAML)
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the embedded knowledge base, parsed once. It panics if the
// embedded document is corrupt.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Load()
		if err != nil {
			panic(err)
		}
		defaultBase = b
	})
	return defaultBase
}

// Disaster returns a copy of the profile for kind.
func (b *Base) Disaster(kind string) (Disaster, bool) {
	i, ok := b.byKind[strings.ToLower(kind)]
	if !ok {
		return Disaster{}, false
	}
	d := b.Disasters[i]
	d.Checklist = append([]string(nil), d.Checklist...)
	return d, true
}

// Kinds lists the disaster kinds in document order.
func (b *Base) Kinds() []string {
	kinds := make([]string, len(b.Disasters))
	for i, d := range b.Disasters {
		kinds[i] = d.Kind
	}
	return kinds
}

// Neighborhood looks up a neighborhood by its key ("heights", "clearlake").
func (b *Base) Neighborhood(name string) (Neighborhood, bool) {
	n, ok := b.Neighborhoods[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

func (b *Base) Contacts() []Contact {
	return append([]Contact(nil), b.ContactList...)
}

// SeasonalItems returns the items for every season covering month.
func (b *Base) SeasonalItems(month time.Month) []string {
	var out []string
	for _, s := range b.Seasonal {
		for _, m := range s.Months {
			if m == month {
				out = append(out, s.Items...)
				break
			}
		}
	}
	return out
}
