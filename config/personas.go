package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"speaktoheaven/models"
)

//go:embed personas.yaml
var defaultPersonas []byte

var personaIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Catalog is the persona table. It is built once at startup and never
// mutated, so lookups need no locking.
type Catalog struct {
	byID  map[string]models.Persona
	order []models.Persona
}

// LoadCatalog reads path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	raw := defaultPersonas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read personas file: %w", err)
		}
		raw = b
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var list []models.Persona
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	return NewCatalog(list)
}

func NewCatalog(list []models.Persona) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}
	c := &Catalog{byID: make(map[string]models.Persona, len(list))}
	for i, p := range list {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if !personaIDPattern.MatchString(p.ID) {
			return nil, fmt.Errorf("persona %d: invalid id %q", i, p.ID)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("persona %s: missing name", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %s: duplicate id", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (models.Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) List() []models.Persona {
	out := make([]models.Persona, len(c.order))
	copy(out, c.order)
	return out
}
