package registry

import (
	"fmt"
	"testing"
)

type item struct {
	ID   string
	Name string
}

func TestBaseRegistry_RegisterGet(t *testing.T) {
	r := NewBaseRegistry[item]()

	if err := r.Register("a", item{ID: "a", Name: "first"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("", item{Name: "no id"}); err == nil {
		t.Fatal("expected error registering empty name")
	}
	if err := r.Register("a", item{Name: "dup"}); err == nil {
		t.Fatal("expected error on duplicate registration")
	}

	got, ok := r.Get("a")
	if !ok || got.Name != "first" {
		t.Fatalf("Get(a) = %+v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) should report false")
	}
}

func TestBaseRegistry_ListSortedByName(t *testing.T) {
	r := NewBaseRegistry[item]()
	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(name, item{ID: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() length = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Fatalf("List()[%d].ID = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestBaseRegistry_RemoveCountClear(t *testing.T) {
	r := NewBaseRegistry[item]()
	_ = r.Register("a", item{ID: "a"})
	_ = r.Register("b", item{ID: "b"})

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	if err := r.Remove("a"); err != nil {
		t.Fatalf("Remove(a): %v", err)
	}
	if err := r.Remove("a"); err == nil {
		t.Fatal("expected error removing already-removed name")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() after remove = %d, want 1", r.Count())
	}

	r.Clear()
	if r.Count() != 0 || len(r.List()) != 0 {
		t.Fatalf("registry not empty after Clear(): count=%d list=%v", r.Count(), r.List())
	}
}

func TestBaseRegistry_ConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[item]()
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 100; i++ {
			id := fmt.Sprintf("item-%d", i)
			_ = r.Register(id, item{ID: id})
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 100; i++ {
			r.Get(fmt.Sprintf("item-%d", i))
			r.Count()
			r.List()
		}
	}()
	<-done
	<-done

	if r.Count() != 100 {
		t.Fatalf("Count() = %d, want 100", r.Count())
	}
}
