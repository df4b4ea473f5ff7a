package domain

import "testing"

func TestClassifyKnownTokens(t *testing.T) {
	cases := map[string]Department{
		"TECHNICAL":    Technical,
		"technical":    Technical,
		" it ":         Technical,
		"IT":           Technical,
		"It":           Technical,
		"\tProduction": Production,
		"prod":         Production,
		"PROD ":        Production,
		"SUPPORT":      Support,
	}
	for raw, want := range cases {
		if got := Classify(raw); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestClassifyFallsBackToSupport(t *testing.T) {
	for _, raw := range []string{"", "   ", "Techincal", "I T", "HR", "production line", "IT-2"} {
		if got := Classify(raw); got != Support {
			t.Fatalf("Classify(%q) = %s, want SUPPORT", raw, got)
		}
	}
}

func TestClassifyAlwaysCanonical(t *testing.T) {
	inputs := []string{"", "x", "it", "PROD", "Support", "tech", "ÏT", "\n"}
	for _, raw := range inputs {
		got := Classify(raw)
		if got != Technical && got != Production && got != Support {
			t.Fatalf("Classify(%q) returned non-canonical %q", raw, got)
		}
	}
}

func TestCanonicalTracksRawDepartment(t *testing.T) {
	r := StudentRecord{Department: "IT"}
	if r.Canonical() != Technical {
		t.Fatalf("expected TECHNICAL, got %s", r.Canonical())
	}
	r.Department = "prod"
	if r.Canonical() != Production {
		t.Fatalf("expected PRODUCTION after rename, got %s", r.Canonical())
	}
}
