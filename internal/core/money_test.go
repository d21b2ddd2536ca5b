package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true}, // redeeming nothing is a valid record
		{"1.005", 101, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyDivideBy(t *testing.T) {
	cases := []struct {
		cents   int64
		divisor int64
		want    int64
	}{
		{30000, 3, 10000},  // $300 quarterly -> $100/month
		{60000, 6, 10000},  // $600 semiannual -> $100/month
		{120000, 12, 10000},
		{1000, 3, 333},
		{1001, 3, 334}, // half-up at the cent
		{0, 12, 0},
		{100, 0, 0},
	}
	for _, tc := range cases {
		got := (Money{Cents: tc.cents}).DivideBy(tc.divisor)
		if got.Cents != tc.want {
			t.Fatalf("%d/%d: got %d, want %d", tc.cents, tc.divisor, got.Cents, tc.want)
		}
	}
}

func TestPercentUsed(t *testing.T) {
	cases := []struct {
		used, possible int64
		want           int
	}{
		{1400, 2000, 70},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 0}, // defined zero-case, never NaN
		{500, 0, 0},
		{2000, 2000, 100},
	}
	for _, tc := range cases {
		got := PercentUsed(Money{Cents: tc.used}, Money{Cents: tc.possible})
		if got != tc.want {
			t.Fatalf("%d/%d: got %d, want %d", tc.used, tc.possible, got, tc.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if s := (Money{Cents: 1234}).String(); s != "$12.34" {
		t.Fatalf("got %q", s)
	}
	if s := (Money{Cents: -5}).String(); s != "-$0.05" {
		t.Fatalf("got %q", s)
	}
}
