// Package nodetype holds the node type id <-> name mapping. A Snapshot is
// loaded once by the service layer and passed by value to every component
// that needs it; it is never mutated after construction.
package nodetype

import (
	"errors"
	"fmt"
	"sort"

	"lattice/api/internal/model"
)

var (
	ErrUnknownID   = errors.New("node type id not found")
	ErrUnknownName = errors.New("node type name not found")
)

// Entry is one row of the node_types table.
type Entry struct {
	ID   int64
	Name string
}

type Snapshot struct {
	nameByID map[int64]string
	idByName map[string]int64
}

// New builds a snapshot from stored entries. Duplicate ids or names are a
// data integrity problem and rejected.
func New(entries []Entry) (Snapshot, error) {
	s := Snapshot{
		nameByID: make(map[int64]string, len(entries)),
		idByName: make(map[string]int64, len(entries)),
	}
	for _, e := range entries {
		if _, dup := s.nameByID[e.ID]; dup {
			return Snapshot{}, fmt.Errorf("duplicate node type id %d", e.ID)
		}
		if _, dup := s.idByName[e.Name]; dup {
			return Snapshot{}, fmt.Errorf("duplicate node type name %q", e.Name)
		}
		s.nameByID[e.ID] = e.Name
		s.idByName[e.Name] = e.ID
	}
	return s, nil
}

// Default is the built-in table, also used to seed storage.
func Default() Snapshot {
	s, _ := New(DefaultEntries())
	return s
}

func DefaultEntries() []Entry {
	kinds := model.AllKinds()
	entries := make([]Entry, 0, len(kinds))
	for _, k := range kinds {
		entries = append(entries, Entry{ID: int64(k), Name: k.String()})
	}
	return entries
}

func (s Snapshot) NameByID(id int64) (string, error) {
	name, ok := s.nameByID[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return name, nil
}

func (s Snapshot) IDByName(name string) (int64, error) {
	id, ok := s.idByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return id, nil
}

// IDByKind resolves the stored id of a kind.
func (s Snapshot) IDByKind(kind model.Kind) (int64, error) {
	return s.IDByName(kind.String())
}

// KindByID classifies a stored type id. Names this build does not know map to
// model.KindUnknown.
func (s Snapshot) KindByID(id int64) (model.Kind, error) {
	name, err := s.NameByID(id)
	if err != nil {
		return model.KindUnknown, err
	}
	return model.KindFromName(name), nil
}

// Entries returns the mapping sorted by id.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.nameByID))
	for id, name := range s.nameByID {
		out = append(out, Entry{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s Snapshot) Len() int { return len(s.nameByID) }
