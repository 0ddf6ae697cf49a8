package hostutil

import "testing"

func TestParseHostPort(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		defaultPort int
		wantHost    string
		wantPort    int
		wantErr     bool
	}{
		{"host and numeric port", "example.com:8080", 80, "example.com", 8080, false},
		{"named https port", "example.com:https", 80, "example.com", 443, false},
		{"named http port", "example.com:http", 443, "example.com", 80, false},
		{"host only", "example.com", 80, "example.com", 80, false},
		{"bare IPv6 literal", "[::1]", 80, "::1", 80, false},
		{"bracketed IPv6 with port", "[::1]:443", 80, "::1", 443, false},
		{"invalid port", "example.com:notaport", 80, "", 0, true},
		{"empty host", "", 80, "", 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			host, port, err := ParseHostPort(c.in, c.defaultPort)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got host=%q port=%d", host, port)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != c.wantHost || port != c.wantPort {
				t.Fatalf("got (%q, %d), want (%q, %d)", host, port, c.wantHost, c.wantPort)
			}
		})
	}
}
