// Package descriptor holds the persisted context descriptor: what a unit
// compiles from and which capability attribute values to restore.
package descriptor

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/pelletier/go-toml/v2"
)

// Property is one persisted attribute value. Type is the top-level type tag
// and Content the JSON encoding of the tagged value tree.
type Property struct {
	Type    string `json:"type" toml:"type"`
	Content string `json:"content" toml:"content"`
}

// Descriptor describes what to compile and what state to restore. Inline
// source wins over the origin reference when both are set.
type Descriptor struct {
	OriginRef    string              `json:"origin_ref,omitempty" toml:"origin_ref,omitempty"`
	InlineSource string              `json:"inline_source,omitempty" toml:"inline_source,multiline,omitempty"`
	Properties   map[string]Property `json:"properties,omitempty" toml:"properties,omitempty"`
	PendingCode  string              `json:"pending_code,omitempty" toml:"pending_code,multiline,omitempty"`
	Executed     bool                `json:"executed" toml:"executed"`
}

func New() *Descriptor {
	return &Descriptor{Properties: map[string]Property{}}
}

// Clone returns a deep copy. A nil descriptor clones to an empty one.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return New()
	}
	out := *d
	out.Properties = maps.Clone(d.Properties)
	if out.Properties == nil {
		out.Properties = map[string]Property{}
	}
	return &out
}

// Merge combines a and b right-biased: b's non-empty strings win, Executed
// is or-ed and properties are unioned with b overriding. Neither input is
// mutated.
func Merge(a, b *Descriptor) *Descriptor {
	out := a.Clone()
	if b == nil {
		return out
	}
	if b.OriginRef != "" {
		out.OriginRef = b.OriginRef
	}
	if b.InlineSource != "" {
		out.InlineSource = b.InlineSource
	}
	if b.PendingCode != "" {
		out.PendingCode = b.PendingCode
	}
	out.Executed = out.Executed || b.Executed
	maps.Copy(out.Properties, b.Properties)
	return out
}

// HasSource reports whether the descriptor names something to compile.
func (d *Descriptor) HasSource() bool {
	return d.InlineSource != "" || d.OriginRef != ""
}

func (d *Descriptor) SetProperty(name string, p Property) {
	if d.Properties == nil {
		d.Properties = map[string]Property{}
	}
	d.Properties[name] = p
}

func (d *Descriptor) Property(name string) (Property, bool) {
	p, ok := d.Properties[name]
	return p, ok
}

func (d *Descriptor) DeleteProperty(name string) {
	delete(d.Properties, name)
}

// Marshal encodes the descriptor in its JSON wire format.
func Marshal(d *Descriptor) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func Unmarshal(data []byte) (*Descriptor, error) {
	d := New()
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("descriptor: decode json: %w", err)
	}
	if d.Properties == nil {
		d.Properties = map[string]Property{}
	}
	return d, nil
}

// MarshalTOML encodes the descriptor for human-edited files.
func MarshalTOML(d *Descriptor) ([]byte, error) {
	return toml.Marshal(d)
}

func UnmarshalTOML(data []byte) (*Descriptor, error) {
	d := New()
	if err := toml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("descriptor: decode toml: %w", err)
	}
	if d.Properties == nil {
		d.Properties = map[string]Property{}
	}
	return d, nil
}
