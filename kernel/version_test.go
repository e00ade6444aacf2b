package kernel

import "testing"

// Scenario 6 — version comparison.
func TestCompareVersionsScenario(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2", "1.2.0", 0},
		{"1.10.0", "1.9.9", 1},
		{"0.0.3", "0.0.3", 0},
		{"2.0", "10.0", -1},
	}
	for _, c := range cases {
		if got := CompareVersions(c.a, c.b); got != c.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

// Property 7: antisymmetric, including a pair equal only after zero-padding.
func TestCompareVersionsAntisymmetric(t *testing.T) {
	pairs := [][2]string{{"1.2.3", "1.2.4"}, {"2.0.0", "1.9.9"}, {"1.0", "1.0.0"}}
	for _, p := range pairs {
		fwd := CompareVersions(p[0], p[1])
		bwd := CompareVersions(p[1], p[0])
		if fwd != -bwd {
			t.Errorf("CompareVersions(%q,%q)=%d, CompareVersions(%q,%q)=%d: not antisymmetric", p[0], p[1], fwd, p[1], p[0], bwd)
		}
	}
}

func TestCompareVersionsTransitive(t *testing.T) {
	a, b, c := "1.0.0", "1.5.0", "2.0.0"
	if CompareVersions(a, b) <= 0 && CompareVersions(b, c) <= 0 {
		if CompareVersions(a, c) > 0 {
			t.Errorf("transitivity violated: %s <= %s <= %s but %s > %s", a, b, c, a, c)
		}
	}
}
