package backend

import (
	"testing"
)

func TestBuildProcCatalog(t *testing.T) {
	rows := [][][]byte{
		{[]byte("public"), []byte("get_user"), []byte("2"), []byte("f")},
		{[]byte("public"), []byte("list_orders"), []byte("0"), []byte("t")},
		{[]byte("billing"), []byte("get_user"), []byte("1"), []byte("f")},
	}

	catalog, err := buildProcCatalog(rows)
	if err != nil {
		t.Fatalf("buildProcCatalog() error: %v", err)
	}
	if len(catalog) != 3 {
		t.Fatalf("catalog has %d entries, want 3", len(catalog))
	}

	got, ok := catalog["public.get_user"]
	if !ok {
		t.Fatal("public.get_user missing from catalog")
	}
	if got.NumArgs != 2 || got.ReturnsSet {
		t.Errorf("public.get_user = %+v, want 2 args, no set return", got)
	}

	if got := catalog["public.list_orders"]; !got.ReturnsSet {
		t.Errorf("public.list_orders should return a set")
	}

	// Same function name in a different schema stays distinct.
	if got := catalog["billing.get_user"]; got.NumArgs != 1 {
		t.Errorf("billing.get_user = %+v, want 1 arg", got)
	}
}

func TestBuildProcCatalog_BadRows(t *testing.T) {
	if _, err := buildProcCatalog([][][]byte{{[]byte("public"), []byte("f")}}); err == nil {
		t.Error("expected error for short row")
	}
	rows := [][][]byte{{[]byte("public"), []byte("f"), []byte("not-a-number"), []byte("f")}}
	if _, err := buildProcCatalog(rows); err == nil {
		t.Error("expected error for non-numeric pronargs")
	}
}

func TestBuildProcCatalog_Empty(t *testing.T) {
	catalog, err := buildProcCatalog(nil)
	if err != nil {
		t.Fatalf("buildProcCatalog(nil) error: %v", err)
	}
	if len(catalog) != 0 {
		t.Errorf("catalog has %d entries, want 0", len(catalog))
	}
}
