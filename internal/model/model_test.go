package model

import (
	"reflect"
	"testing"
)

func TestExtractHashtags(t *testing.T) {
	cases := []struct {
		content string
		want    []string
	}{
		{"hello #NodeJS and #express", []string{"nodejs", "express"}},
		{"dup #go #Go #go", []string{"go"}},
		{"lonely # sign", nil},
		{"no tags here", nil},
		{"#a#b next", []string{"a#b"}},
	}
	for _, tc := range cases {
		got := ExtractHashtags(tc.content)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractHashtags(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range []Tier{TierFree, TierPremium} {
		if !tier.Valid() {
			t.Errorf("%q should be valid", tier)
		}
	}
	for _, tier := range []Tier{"", "gold", "FREE"} {
		if tier.Valid() {
			t.Errorf("%q should be invalid", tier)
		}
	}
}
