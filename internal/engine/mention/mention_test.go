package mention

import "testing"

func TestResolveExactMatch(t *testing.T) {
	t.Parallel()
	r := New(map[string]string{
		"Anna Petrova":      "@anna",
		"boris@example.com": "boris_b",
		"  ":                "@ghost",
		"Vera":              "",
	})

	if h, ok := r.Resolve("Anna Petrova"); !ok || h != "@anna" {
		t.Fatalf("Resolve(name) = %q, %v", h, ok)
	}
	if _, ok := r.Resolve("anna petrova"); ok {
		t.Fatal("names must match exactly")
	}
	if _, ok := r.Resolve("Anna"); ok {
		t.Fatal("partial names must not match")
	}
	if h, ok := r.ResolveAssignee("Boris B", "Boris@Example.com"); !ok || h != "@boris_b" {
		t.Fatalf("ResolveAssignee(email) = %q, %v", h, ok)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestApplySwapsTable(t *testing.T) {
	t.Parallel()
	r := New(map[string]string{"Anna": "@anna"})
	r.Apply(map[string]string{"Boris": "@boris"})
	if _, ok := r.Resolve("Anna"); ok {
		t.Fatal("old mapping survived Apply")
	}
	if h, _ := r.Resolve("Boris"); h != "@boris" {
		t.Fatalf("Resolve = %q", h)
	}
}

func TestNilResolver(t *testing.T) {
	t.Parallel()
	var r *Resolver
	if _, ok := r.ResolveAssignee("Anna", "a@b.c"); ok {
		t.Fatal("nil resolver resolved")
	}
}
