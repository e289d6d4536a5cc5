package ids

import "testing"

func TestNewLength(t *testing.T) {
	id := New()
	if len(id) != Length {
		t.Fatalf("expected length %d, got %d (%q)", Length, len(id), id)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestNewAlphabet(t *testing.T) {
	id := New()
	for _, r := range id {
		found := false
		for _, a := range alphabet {
			if r == a {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("id %q contains character %q outside alphabet", id, r)
		}
	}
}
