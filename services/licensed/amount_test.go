package main

import "testing"

func TestParseBaseUnits(t *testing.T) {
	cases := []struct {
		value    string
		decimals int
		want     int64
		wantErr  bool
	}{
		{"30", 6, 30_000_000, false},
		{"29.95", 6, 29_950_000, false},
		{"0.000001", 6, 1, false},
		{"30.", 6, 30_000_000, false},
		{".5", 6, 500_000, false},
		{"30", 0, 30, false},
		{"", 6, 0, true},
		{"-30", 6, 0, true},
		{"-0.5", 6, 0, true},
		{"+30", 6, 0, true},
		{"30.-1", 6, 0, true},
		{"30.1234567", 6, 0, true},
		{"abc", 6, 0, true},
	}
	for _, tc := range cases {
		got, err := parseBaseUnits(tc.value, tc.decimals)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseBaseUnits(%q, %d): expected error, got %d", tc.value, tc.decimals, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBaseUnits(%q, %d): %v", tc.value, tc.decimals, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseBaseUnits(%q, %d) = %d, want %d", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestFormatBaseUnits(t *testing.T) {
	cases := []struct {
		raw      int64
		decimals int
		want     string
	}{
		{30_000_000, 6, "30"},
		{29_950_000, 6, "29.95"},
		{1, 6, "0.000001"},
		{30, 0, "30"},
	}
	for _, tc := range cases {
		if got := formatBaseUnits(tc.raw, tc.decimals); got != tc.want {
			t.Errorf("formatBaseUnits(%d, %d) = %q, want %q", tc.raw, tc.decimals, got, tc.want)
		}
	}
}
