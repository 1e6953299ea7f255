package main

import (
	"errors"
	"testing"
)

func TestHTTPURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ws://localhost:8080", "http://localhost:8080"},
		{"wss://relay.example.com/", "https://relay.example.com/"},
		{"http://already", "http://already"},
	}
	for _, tt := range tests {
		if got := httpURL(tt.in); got != tt.want {
			t.Errorf("httpURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	if v := parseValue("12.5"); v != 12.5 {
		t.Errorf("number: got %v", v)
	}
	if v := parseValue("true"); v != true {
		t.Errorf("bool: got %v", v)
	}
	if v := parseValue("1s"); v != "1s" {
		t.Errorf("string: got %v", v)
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats([]string{"1", "-2.5", "3e1"})
	if err != nil {
		t.Fatalf("parseFloats: %v", err)
	}
	want := []float64{1, -2.5, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := parseFloats([]string{"x"}); !errors.Is(err, errUsage) {
		t.Errorf("bad input: got %v, want errUsage", err)
	}
}
