package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_Exact(t *testing.T) {
	tests := []struct {
		name       string
		set        []string
		permission string
		want       bool
	}{
		{"exact match", []string{"read:agents"}, "read:agents", true},
		{"different action", []string{"read:agents"}, "write:agents", false},
		{"different resource", []string{"read:agents"}, "read:flows", false},
		{"exact among several", []string{"read:agents", "write:agents", "read:flows"}, "write:agents", true},
		{"colonless exact", []string{"admin"}, "admin", true},
		{"colonless no match", []string{"administrate"}, "admin", false},
		{"empty set", nil, "read:agents", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.set, tt.permission))
		})
	}
}

func TestMatches_StoredWildcards(t *testing.T) {
	tests := []struct {
		name       string
		set        []string
		permission string
		want       bool
	}{
		{"action wildcard", []string{"read:*"}, "read:agents", true},
		{"action wildcard wrong action", []string{"read:*"}, "write:agents", false},
		{"resource wildcard", []string{"*:agents"}, "write:agents", true},
		{"resource wildcard wrong resource", []string{"*:agents"}, "write:flows", false},
		{"full wildcard", []string{"*:*"}, "execute:flows", true},
		{"full wildcard matches colonless", []string{"*:*"}, "admin", true},
		{"multi-colon splits at first", []string{"read:*"}, "read:a:b", true},
		{"multi-colon resource wildcard", []string{"*:a:b"}, "read:a:b", true},
		{"multi-colon partial resource no match", []string{"*:a"}, "read:a:b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.set, tt.permission))
		})
	}
}

func TestMatches_Directional(t *testing.T) {
	tests := []struct {
		name       string
		set        []string
		permission string
		want       bool
	}{
		{"stored concrete never widens to wildcard request", []string{"read:agents", "read:flows"}, "read:*", false},
		{"wildcard request matches identical stored", []string{"read:*"}, "read:*", true},
		{"wildcard request matches full wildcard", []string{"*:*"}, "read:*", true},
		{"resource wildcard request only exact", []string{"read:agents"}, "*:agents", false},
		{"resource wildcard request identical stored", []string{"*:agents"}, "*:agents", true},
		{"colonless request no action widening", []string{"admin:*"}, "admin", false},
		{"colonless request full wildcard", []string{"*:*"}, "admin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.set, tt.permission))
		})
	}
}

func TestMatches_EmptyPermission(t *testing.T) {
	assert.False(t, Matches([]string{"*:*"}, ""), "empty permission is never granted")
	assert.False(t, Matches(nil, ""))
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name       string
		permission string
		want       []string
	}{
		{"concrete pair", "read:agents", []string{"read:agents", "*:*", "read:*", "*:agents"}},
		{"multi-colon", "read:a:b", []string{"read:a:b", "*:*", "read:*", "*:a:b"}},
		{"colonless", "admin", []string{"admin", "*:*"}},
		{"wildcard request", "read:*", []string{"read:*", "*:*"}},
		{"full wildcard request", "*:*", []string{"*:*", "*:*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidates(tt.permission))
		})
	}
}

func TestSortedUnique(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"dedupes and sorts", []string{"write:agents", "read:agents", "write:agents"}, []string{"read:agents", "write:agents"}},
		{"drops empty strings", []string{"", "read:agents", ""}, []string{"read:agents"}},
		{"nil input yields empty non-nil", nil, []string{}},
		{"all empties yields empty non-nil", []string{"", ""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sortedUnique(append([]string(nil), tt.in...))
			assert.Equal(t, tt.want, got)
			assert.NotNil(t, got)
		})
	}
}
