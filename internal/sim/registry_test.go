package sim

import (
	"errors"
	"testing"

	"github.com/echopolis/market-engine/internal/model"
)

func TestRegistry_CreateGetDelete(t *testing.T) {
	reg := NewRegistry()
	a, err := reg.Create(Config{Seed: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := reg.Create(Config{Seed: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}

	got, err := reg.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("expected session %s, got %v, %v", a.ID(), got, err)
	}
	if reg.Len() != 2 || len(reg.List()) != 2 {
		t.Errorf("expected 2 sessions, got %d", reg.Len())
	}

	if err := reg.Delete(a.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Get(a.ID()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := reg.Delete(a.ID()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_ListOldestFirst(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 4; i++ {
		if _, err := reg.Create(Config{Seed: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	list := reg.List()
	for i := 1; i < len(list); i++ {
		if list[i].createdAt.Before(list[i-1].createdAt) {
			t.Fatalf("list not ordered by creation time")
		}
	}
}

func TestRegistry_Restore(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Create(Config{Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdvanceTick(); err != nil {
		t.Fatal(err)
	}
	snap := s.ExportState()

	fresh := NewRegistry()
	restored, err := fresh.Restore(snap, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := fresh.Get(s.ID()); got != restored {
		t.Error("restored session not registered under its id")
	}
	if restored.MacroSnapshot().Tick != 1 {
		t.Errorf("expected tick 1, got %d", restored.MacroSnapshot().Tick)
	}

	snap.SessionID = ""
	if _, err := fresh.Restore(snap, Config{}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
