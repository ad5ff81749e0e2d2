package chinese

import "testing"

func TestNormalizeToSimplified(t *testing.T) {
	n, err := NewTableNormalizer()
	if err != nil {
		t.Fatalf("load mapping table: %v", err)
	}

	got := n.Normalize("觀自在菩薩", ToSimplified)
	if got != "观自在菩萨" {
		t.Fatalf("expected simplified form got %q", got)
	}

	// Characters shared between scripts pass through untouched.
	got = n.Normalize("般若波罗蜜多", ToSimplified)
	if got != "般若波罗蜜多" {
		t.Fatalf("shared characters should be unchanged got %q", got)
	}
}

func TestNormalizeIdempotentOnSimplified(t *testing.T) {
	n, err := NewTableNormalizer()
	if err != nil {
		t.Fatalf("load mapping table: %v", err)
	}

	once := n.Normalize("心經觀世音", ToSimplified)
	twice := n.Normalize(once, ToSimplified)
	if once != twice {
		t.Fatalf("normalization must be idempotent: %q vs %q", once, twice)
	}
}

func TestNormalizeRoundTripIsApproximate(t *testing.T) {
	n, err := NewTableNormalizer()
	if err != nil {
		t.Fatalf("load mapping table: %v", err)
	}

	simplified := n.Normalize("心經", ToSimplified)
	if simplified != "心经" {
		t.Fatalf("expected 心经 got %q", simplified)
	}
	back := n.Normalize(simplified, ToTraditional)
	if back != "心經" {
		t.Fatalf("expected the common reverse mapping got %q", back)
	}
}

func TestPassthroughNeverAlters(t *testing.T) {
	p := Passthrough{}
	for _, text := range []string{"", "觀世音", "plain ascii"} {
		if got := p.Normalize(text, ToSimplified); got != text {
			t.Fatalf("passthrough altered %q into %q", text, got)
		}
	}
}

func TestDetectPrefersTable(t *testing.T) {
	if _, ok := Detect(nil).(*TableNormalizer); !ok {
		t.Fatalf("expected table normalizer when the embedded mapping is present")
	}
}
