package objectstore

import (
	"context"
	"errors"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Put(ctx, RawCategoriesKey("2024-07-05"), []byte(`{"date":"2024-07-05"}`), ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, RawProductsKey("2024-07-05", 42), []byte(`{}`), ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, RawProductsKey("2024-07-05", 7), []byte(`{}`), ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "raw/categories/2024-07-05.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"date":"2024-07-05"}` {
		t.Fatalf("Get: want=%q got=%q", `{"date":"2024-07-05"}`, got)
	}

	keys, err := s.List(ctx, RawProductsPrefix("2024-07-05"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"raw/products_category/2024-07-05/42.json", "raw/products_category/2024-07-05/7.json"}
	if len(keys) != len(want) {
		t.Fatalf("List: want=%v got=%v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("List[%d]: want=%q got=%q", i, want[i], keys[i])
		}
	}

	if err := DeletePrefix(ctx, s, RawProductsPrefix("2024-07-05")); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	keys, _ = s.List(ctx, "raw/")
	if len(keys) != 1 {
		t.Fatalf("List after delete: want 1 key got=%v", keys)
	}
	if _, err := s.Get(ctx, RawProductsKey("2024-07-05", 42)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get deleted: want ErrNotFound got=%v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFilesystemStore(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	exerciseStore(t, fs)
}

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"/raw/categories/":    "raw/categories/",
		"raw/../raw/x.json":   "raw/x.json",
		"  bronze\\products ": "bronze/products",
		"":                    "",
	}
	for in, want := range cases {
		if got := CleanKey(in); got != want {
			t.Fatalf("CleanKey(%q): want=%q got=%q", in, want, got)
		}
	}
}
