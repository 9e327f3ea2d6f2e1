package adapter

import (
	"context"
	"testing"
)

func nopHandler(_ context.Context, _ Args) (any, error) { return nil, nil }

func TestNewRegistryRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{"no operations", nil},
		{"empty name", []Spec{{Name: "", Handler: nopHandler}}},
		{"nil handler", []Spec{{Name: "echo.ping"}}},
		{"duplicate", []Spec{
			{Name: "echo.ping", Handler: nopHandler},
			{Name: "echo.ping", Handler: nopHandler},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.specs...); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNewRegistryDefaultsCategoryToName(t *testing.T) {
	r, err := NewRegistry(
		Spec{Name: "chat.post", Handler: nopHandler},
		Spec{Name: "chat.history", Category: "chat-read", Handler: nopHandler},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	post, ok := r.Lookup("chat.post")
	if !ok {
		t.Fatal("chat.post not found")
	}
	if post.Category != "chat.post" {
		t.Errorf("category = %q, want %q", post.Category, "chat.post")
	}

	hist, ok := r.Lookup("chat.history")
	if !ok {
		t.Fatal("chat.history not found")
	}
	if hist.Category != "chat-read" {
		t.Errorf("category = %q, want %q", hist.Category, "chat-read")
	}
}

func TestRegistryListKeepsDeclarationOrder(t *testing.T) {
	r, err := NewRegistry(
		Spec{Name: "b.second", Handler: nopHandler},
		Spec{Name: "a.first", Handler: nopHandler},
		Spec{Name: "c.third", Handler: nopHandler},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := r.List()
	want := []string{"b.second", "a.first", "c.third"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("list[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestRegistryLookupMiss(t *testing.T) {
	r, err := NewRegistry(Spec{Name: "echo.ping", Handler: nopHandler})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Lookup("echo.pong"); ok {
		t.Error("expected lookup miss for echo.pong")
	}
}
