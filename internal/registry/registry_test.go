package registry

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistryCreate(t *testing.T) {
	r := New[string]()
	r.Register("echo", func(config map[string]string) (string, error) {
		return config["value"], nil
	})

	got, err := r.Create("echo", map[string]string{"value": "hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != "hi" {
		t.Errorf("Create = %q, want %q", got, "hi")
	}
	if !r.Has("echo") {
		t.Error("Has(echo) = false")
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := New[int]()
	if _, err := r.Create("missing", nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := New[int]()
	boom := errors.New("boom")
	r.Register("bad", func(map[string]string) (int, error) { return 0, boom })
	if _, err := r.Create("bad", nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := New[int]()
	for _, name := range []string{"remote", "google", "openai"} {
		r.Register(name, func(map[string]string) (int, error) { return 0, nil })
	}
	want := []string{"google", "openai", "remote"}
	if got := r.List(); !slices.Equal(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
}
