package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAndFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"1000", "1000.00"},
		{"1234.5", "1234.50"},
		{"-99.999", "-100.00"},
		{"0.005", "0.01"},
	}
	for _, tc := range cases {
		d, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got := Format(Round2(d)); got != tc.want {
			t.Fatalf("format %q: got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("12,34"); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestWithinTolerance(t *testing.T) {
	if !WithinTolerance(MustParse("0.01")) {
		t.Fatal("0.01 should be within tolerance")
	}
	if !WithinTolerance(MustParse("-0.01")) {
		t.Fatal("-0.01 should be within tolerance")
	}
	if WithinTolerance(MustParse("0.011")) {
		t.Fatal("0.011 should exceed tolerance")
	}
}

func TestBalancedAbsorbsRoundingResidue(t *testing.T) {
	debit := MustParse("33.33").Add(MustParse("33.33")).Add(MustParse("33.33"))
	credit := MustParse("99.99")
	if !Balanced(debit, credit) {
		t.Fatal("expected balanced within tolerance")
	}
	if Balanced(debit, MustParse("100.01")) {
		t.Fatal("two cents apart must not balance")
	}
}

func TestEqualIsExact(t *testing.T) {
	if Equal(MustParse("10.00"), MustParse("10.01")) {
		t.Fatal("one cent apart is not equal")
	}
	if !Equal(MustParse("10"), MustParse("10.00")) {
		t.Fatal("scale must not affect equality")
	}
}

func TestSumKeepsExactness(t *testing.T) {
	// 0.1 + 0.2 drifts under binary floats; it must not here.
	got := Sum(MustParse("0.1"), MustParse("0.2"))
	if !got.Equal(MustParse("0.3")) {
		t.Fatalf("sum drifted: %s", got)
	}
	total := decimal.Zero
	for i := 0; i < 1000; i++ {
		total = total.Add(MustParse("0.01"))
	}
	if !total.Equal(MustParse("10")) {
		t.Fatalf("1000 cents should be exactly 10, got %s", total)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(MustParse("25"), MustParse("200")); !got.Equal(MustParse("12.5")) {
		t.Fatalf("got %s", got)
	}
	if got := Percent(MustParse("10"), Zero()); !got.IsZero() {
		t.Fatalf("zero whole must yield zero, got %s", got)
	}
}
