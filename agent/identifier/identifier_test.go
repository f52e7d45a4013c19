package identifier

import "testing"

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"FWD-1013", "FWD-1013"},
		{"fwd 1013", "FWD-1013"},
		{"FWD1013", "FWD-1013"},
		{"FWD‑1013", "FWD-1013"},
		{"track fwd– 1013 please", "track FWD-1013 please"},
		{"rev-9001 and NDR 201", "REV-9001 and NDR-201"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"FWD-1013", "fwd 1013", "FWD1013", "is EXC-301 delivered?"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	id, ok := Extract("where is my package fwd 1013?")
	if !ok {
		t.Fatal("expected an identifier")
	}
	if id.Kind != KindForward || id.Number != "1013" {
		t.Fatalf("unexpected identifier: %+v", id)
	}
	if id.String() != "FWD-1013" {
		t.Fatalf("unexpected canonical form: %s", id.String())
	}

	if _, ok := Extract("where is my package?"); ok {
		t.Fatal("expected no identifier")
	}
}

func TestExtractAllOrder(t *testing.T) {
	t.Parallel()

	ids := ExtractAll("return FWD-1001, not fwd1002")
	if len(ids) != 2 {
		t.Fatalf("expected 2 identifiers, got %d", len(ids))
	}
	if ids[0].String() != "FWD-1001" || ids[1].String() != "FWD-1002" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}

func TestExtractOrderRef(t *testing.T) {
	t.Parallel()

	n, ok := ExtractOrderRef("how much did I pay for order 5001?")
	if !ok || n != 5001 {
		t.Fatalf("ExtractOrderRef = %d, %v", n, ok)
	}

	if _, ok := ExtractOrderRef("I ordered 2 mugs"); ok {
		t.Fatal("short numbers must not match as order refs")
	}
}

func TestExtractProductName(t *testing.T) {
	t.Parallel()

	aliases := DefaultProductAliases()

	name, ok := ExtractProductName(`how much was the "USB Hub" I bought`, aliases)
	if !ok || name != "USB Hub" {
		t.Fatalf("quoted extraction = %q, %v", name, ok)
	}

	name, ok = ExtractProductName("my gamming monitor hasn't arrived", aliases)
	if !ok || name != "Gaming Monitor" {
		t.Fatalf("alias extraction = %q, %v", name, ok)
	}

	if _, ok := ExtractProductName("my package is late", aliases); ok {
		t.Fatal("expected no product name")
	}
}
