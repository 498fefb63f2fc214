package ids

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"12,345 ":               "12345",
		"12345":                 "12345",
		" 12345.0":              "12345",
		"12345.00":              "12345",
		"1.2345e+04":            "12345",
		"9876543210987654321.0": "9876543210987654321",
		"12.5":                  "12.5",
		"CALL-7":                "CALL-7",
		"":                      "",
		"nan":                   "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeSameKeyAcrossRepresentations(t *testing.T) {
	if Normalize("12,345 ") != Normalize("12345") {
		t.Fatalf("comma and plain representations must share a key")
	}
}

func TestResolverPrefersReference(t *testing.T) {
	r := NewResolver(map[string]Parties{
		"1,001": {SellerID: "S1", BuyerID: "B1.0"},
	})
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	got := r.Resolve(" 1001", Parties{SellerID: "other"})
	if got.SellerID != "S1" || got.BuyerID != "B1.0" {
		t.Fatalf("unexpected parties %+v", got)
	}
}

func TestResolverCollidingIDsAreDeterministic(t *testing.T) {
	entries := map[string]Parties{
		"1001":   {SellerID: "S1"},
		"1,001":  {SellerID: "S2"},
		"1001.0": {SellerID: "S3"},
	}
	for i := 0; i < 20; i++ {
		r := NewResolver(entries)
		if r.Len() != 1 {
			t.Fatalf("expected one call, got %d", r.Len())
		}
		if got, _ := r.Lookup("1001"); got.SellerID != "S3" {
			t.Fatalf("iteration %d: got seller %q, want S3", i, got.SellerID)
		}
	}
}

func TestResolverFallback(t *testing.T) {
	r := NewResolver(nil)
	got := r.Resolve("42", Parties{SellerID: "77.0"})
	if got.SellerID != "77" || got.BuyerID != "" {
		t.Fatalf("unexpected fallback %+v", got)
	}

	var zero *Resolver
	if p := zero.Resolve("42", Parties{}); p != (Parties{}) {
		t.Fatalf("nil resolver should resolve to empty parties, got %+v", p)
	}
}
