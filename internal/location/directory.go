// Package location maps sensor device ids to human-readable location names.
package location

import (
	"maps"

	"lacrosse-relay/internal/types"
)

// Entry is one configured device-to-location mapping.
type Entry struct {
	DeviceID types.DeviceID `json:"deviceId" yaml:"deviceId"`
	Name     string         `json:"name" yaml:"name"`
}

// Directory is an immutable device id -> location name lookup.
// It is safe for concurrent use.
type Directory struct {
	names map[string]string
}

// New builds a Directory from entries. Entries without a device id or a name
// are skipped; a later entry for the same device id replaces an earlier one.
func New(entries []Entry) *Directory {
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.DeviceID.IsZero() || e.Name == "" {
			continue
		}
		names[e.DeviceID.String()] = e.Name
	}
	return &Directory{names: names}
}

// Resolve returns the location name for id. A miss is a normal outcome.
func (d *Directory) Resolve(id types.DeviceID) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.names[id.String()]
	return name, ok
}

// Len returns the number of mappings.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// Entries returns a copy of the mappings.
func (d *Directory) Entries() map[string]string {
	if d == nil {
		return map[string]string{}
	}
	return maps.Clone(d.names)
}
