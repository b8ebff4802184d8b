package main

import "testing"

func TestDeriveHTTPBase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ws://127.0.0.1:8181/ws", "http://127.0.0.1:8181"},
		{"wss://admin.example.com/ws", "https://admin.example.com"},
		{"ws://[::1]:9000/ws", "http://[::1]:9000"},
		{"not a url", "http://127.0.0.1:8181"},
	}
	for _, tt := range tests {
		if got := deriveHTTPBase(tt.in); got != tt.want {
			t.Errorf("deriveHTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
