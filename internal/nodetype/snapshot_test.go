package nodetype

import (
	"errors"
	"testing"

	"lattice/api/internal/model"
)

func TestDefaultSnapshotMatchesKindTable(t *testing.T) {
	s := Default()
	tests := []struct {
		name string
		id   int64
	}{
		{"Heading", 1},
		{"List", 2},
		{"ListItem", 3},
		{"Task", 8},
		{"Paragraph", 10},
		{"Text", 32},
	}
	for _, tt := range tests {
		id, err := s.IDByName(tt.name)
		if err != nil {
			t.Fatalf("IDByName(%q) error = %v", tt.name, err)
		}
		if id != tt.id {
			t.Errorf("IDByName(%q) = %d, want %d", tt.name, id, tt.id)
		}
		name, err := s.NameByID(tt.id)
		if err != nil || name != tt.name {
			t.Errorf("NameByID(%d) = %q, %v", tt.id, name, err)
		}
	}
	if s.Len() != 32 {
		t.Fatalf("expected 32 entries, got %d", s.Len())
	}
}

func TestSnapshotLookupErrors(t *testing.T) {
	s := Default()
	if _, err := s.NameByID(999); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
	if _, err := s.IDByName("Nope"); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("expected ErrUnknownName, got %v", err)
	}
}

func TestKindByIDWithCustomTable(t *testing.T) {
	s, err := New([]Entry{{ID: 40, Name: "Heading"}, {ID: 41, Name: "Callout"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	kind, err := s.KindByID(40)
	if err != nil || kind != model.KindHeading {
		t.Fatalf("KindByID(40) = %v, %v", kind, err)
	}
	kind, err = s.KindByID(41)
	if err != nil || kind != model.KindUnknown {
		t.Fatalf("KindByID(41) = %v, %v", kind, err)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	if _, err := New([]Entry{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := New([]Entry{{ID: 1, Name: "A"}, {ID: 2, Name: "A"}}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}
