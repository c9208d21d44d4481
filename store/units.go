package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgomes/vibectx/descriptor"
)

const (
	unitPrefix       = "units"
	unitExt          = ".vibe"
	descriptorPrefix = "descriptors"
	descriptorExt    = ".json"
)

// Units keeps unit sources and descriptors in a Backend. It satisfies
// vibectx.UnitLoader.
type Units struct {
	backend Backend
}

func NewUnits(backend Backend) *Units {
	return &Units{backend: backend}
}

func (u *Units) Backend() Backend { return u.backend }

func unitKey(name string) string {
	return unitPrefix + "/" + strings.TrimSuffix(name, unitExt) + unitExt
}

func (u *Units) LoadUnit(ctx context.Context, name string) (string, error) {
	content, err := u.backend.Get(ctx, unitKey(name))
	if err != nil {
		return "", fmt.Errorf("load unit %s: %w", name, err)
	}
	return string(content), nil
}

func (u *Units) SaveUnit(ctx context.Context, name, source string) error {
	if err := u.backend.Put(ctx, unitKey(name), []byte(source)); err != nil {
		return fmt.Errorf("save unit %s: %w", name, err)
	}
	return nil
}

func (u *Units) DeleteUnit(ctx context.Context, name string) error {
	return u.backend.Delete(ctx, unitKey(name))
}

// ListUnits returns the stored unit names, sorted.
func (u *Units) ListUnits(ctx context.Context) ([]string, error) {
	keys, err := u.backend.List(ctx, unitPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if name, ok := strings.CutSuffix(key, unitExt); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// LoadDescriptor returns the descriptor stored under id.
func (u *Units) LoadDescriptor(ctx context.Context, id string) (*descriptor.Descriptor, error) {
	content, err := u.backend.Get(ctx, descriptorPrefix+"/"+id+descriptorExt)
	if err != nil {
		return nil, fmt.Errorf("load descriptor %s: %w", id, err)
	}
	return descriptor.Unmarshal(content)
}

func (u *Units) SaveDescriptor(ctx context.Context, id string, d *descriptor.Descriptor) error {
	content, err := descriptor.Marshal(d)
	if err != nil {
		return err
	}
	if err := u.backend.Put(ctx, descriptorPrefix+"/"+id+descriptorExt, content); err != nil {
		return fmt.Errorf("save descriptor %s: %w", id, err)
	}
	return nil
}
