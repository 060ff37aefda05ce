package runtime

import (
	"context"
	"testing"
)

func TestFakeInspectCarriesLabels(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	labels := map[string]string{"kosuke.project": "p1", "kosuke.session": "s1"}
	if _, err := f.Create(ctx, CreateSpec{Name: "kosuke-p1-s1", Image: "img", Labels: labels}); err != nil {
		t.Fatalf("create: %v", err)
	}

	info, err := f.Inspect(ctx, "kosuke-p1-s1")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.State != StateRunning {
		t.Fatalf("state = %q, want %q", info.State, StateRunning)
	}
	if info.Labels["kosuke.project"] != "p1" || info.Labels["kosuke.session"] != "s1" {
		t.Fatalf("labels = %v", info.Labels)
	}
}

func TestFakeListFiltersByLabels(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	for _, c := range []struct{ name, project string }{
		{"kosuke-p1-s1", "p1"},
		{"kosuke-p1-s2", "p1"},
		{"kosuke-p2-s1", "p2"},
	} {
		_, err := f.Create(ctx, CreateSpec{
			Name:   c.name,
			Image:  "img",
			Labels: map[string]string{"kosuke.project": c.project},
		})
		if err != nil {
			t.Fatalf("create %s: %v", c.name, err)
		}
	}

	infos, err := f.List(ctx, map[string]string{"kosuke.project": "p1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d containers, want 2", len(infos))
	}
	for _, info := range infos {
		if info.Labels["kosuke.project"] != "p1" {
			t.Fatalf("%s labels = %v", info.Name, info.Labels)
		}
	}
}

func TestFakeInspectMissingContainer(t *testing.T) {
	f := NewFake()

	info, err := f.Inspect(context.Background(), "kosuke-px-sx")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.State != StateNotFound {
		t.Fatalf("state = %q, want %q", info.State, StateNotFound)
	}
}
