package urlinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://example.com/page", "example.com"},
		{"https://Example.COM:8443/x?y=1", "example.com"},
		{"http://example.com./", "example.com"},
		{"http://[::1]:80/", "::1"},
		{"example.com/page", ""},
		{"%zz", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HostOf(tc.in), "HostOf(%q)", tc.in)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://example.com/page", "http://example.com/page", true},
		{"example.org", "http://example.org/", true},
		{"example.com/page", "http://example.com/page/", true},
		{"example.com/page?q=1", "example.com/page?q=1", true},
		{"http://", "", false},
		{"mailto:someone@example.com", "", false},
		{"localhost:8080", "", false},
		{"alice@example.com", "", false},
		{"alice@example.com/x?y=1", "", false},
		{"http://alice@example.com/", "http://alice@example.com/", true},
		{"", "", false},
		{"%zz", "", false},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		assert.Equal(t, tc.ok, ok, "Normalize(%q) ok", tc.in)
		assert.Equal(t, tc.want, got, "Normalize(%q)", tc.in)
	}
}
