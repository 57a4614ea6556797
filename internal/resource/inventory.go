package resource

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Inventory reports the units the pool should manage. It is consulted at startup
// and on every scheduled refresh.
type Inventory interface {
	Units(ctx context.Context) ([]Unit, error)
}

// StaticInventory describes Count identical units named "<capability>-<n>".
type StaticInventory struct {
	Capability string
	Count      int
}

// Units implements Inventory.
func (s StaticInventory) Units(context.Context) ([]Unit, error) {
	if s.Count < 0 {
		return nil, fmt.Errorf("negative unit count %d", s.Count)
	}
	units := make([]Unit, s.Count)
	for i := range units {
		units[i] = Unit{ID: fmt.Sprintf("%s-%d", s.Capability, i), Capability: s.Capability}
	}
	return units, nil
}

// FileInventory reads units from a YAML document of the form:
//
//	units:
//	  - id: gpu-a100-0
//	    capability: gpu
//
// The file is re-read on every call so edits take effect on the next refresh.
type FileInventory struct {
	Path string
	// DefaultCapability fills in entries that omit capability.
	DefaultCapability string
}

type inventoryFile struct {
	Units []Unit `yaml:"units"`
}

// Units implements Inventory.
func (f FileInventory) Units(context.Context) ([]Unit, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var doc inventoryFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	for i := range doc.Units {
		if doc.Units[i].ID == "" {
			return nil, fmt.Errorf("parse inventory: unit %d has no id", i)
		}
		if doc.Units[i].Capability == "" {
			doc.Units[i].Capability = f.DefaultCapability
		}
	}
	return doc.Units, nil
}
