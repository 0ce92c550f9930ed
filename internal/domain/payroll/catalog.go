package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Catalog caches the component reference data and hydrates structures with it.
type Catalog struct {
	store StoreAPI
	group singleflight.Group

	mu         sync.RWMutex
	components map[string]PayComponent
}

func NewCatalog(store StoreAPI) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) Components(ctx context.Context) (map[string]PayComponent, error) {
	c.mu.RLock()
	cached := c.components
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := c.group.Do("components", func() (any, error) {
		list, err := c.store.ListComponents(ctx)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]PayComponent, len(list))
		for _, comp := range list {
			byID[comp.ID] = comp
		}
		c.mu.Lock()
		c.components = byID
		c.mu.Unlock()
		return byID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load pay components: %w", err)
	}
	return v.(map[string]PayComponent), nil
}

// List returns the catalog ordered by code.
func (c *Catalog) List(ctx context.Context) ([]PayComponent, error) {
	byID, err := c.Components(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PayComponent, 0, len(byID))
	for _, comp := range byID {
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Structure loads a structure and fills each component from the catalog.
// Components missing from the catalog are left empty for Resolve to reject.
func (c *Catalog) Structure(ctx context.Context, id string) (SalaryStructure, error) {
	v, err, _ := c.group.Do("structure:"+id, func() (any, error) {
		return c.store.GetStructure(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrStructureNotFound) {
			return SalaryStructure{}, &StructuralError{Reason: "salary structure " + id + " does not exist", Err: err}
		}
		return SalaryStructure{}, err
	}
	byID, err := c.Components(ctx)
	if err != nil {
		return SalaryStructure{}, err
	}

	shared := v.(SalaryStructure)
	structure := shared
	structure.Components = make([]StructureComponent, len(shared.Components))
	for i, sc := range shared.Components {
		sc.Component = byID[sc.ComponentID]
		structure.Components[i] = sc
	}
	return structure, nil
}
