// Package catalog holds the static dictionary of recycling project links shown
// after a successful scan. The data ships embedded in the binary and is
// read-only; detections never modify it.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

//go:embed projects.json
var projectsJSON []byte

// ProjectEntry is one recycling project suggestion for a detected label.
type ProjectEntry struct {
	Title string   `json:"title" validate:"required"`
	Links []string `json:"links" validate:"required,min=1,dive,url"`
}

type Catalog struct {
	entries map[string][]ProjectEntry
}

// Load parses and validates the embedded project dictionary.
func Load() (*Catalog, error) {
	entries := make(map[string][]ProjectEntry)
	if err := json.Unmarshal(projectsJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse project catalog: %w", err)
	}

	v := validator.New()
	for label, projects := range entries {
		if label == "" {
			return nil, fmt.Errorf("project catalog: empty label key")
		}
		for _, p := range projects {
			if err := v.Struct(p); err != nil {
				return nil, fmt.Errorf("project catalog: label %q: %w", label, err)
			}
		}
	}

	return &Catalog{entries: entries}, nil
}

// Lookup returns the projects for a label, or an empty slice for unknown
// labels. Never fails.
func (c *Catalog) Lookup(label string) []ProjectEntry {
	return c.entries[label]
}

// Labels returns the known labels in sorted order.
func (c *Catalog) Labels() []string {
	labels := make([]string, 0, len(c.entries))
	for l := range c.entries {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
