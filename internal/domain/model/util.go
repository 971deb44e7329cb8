package model

import "strings"

// lowerFold is the single case-folding function used everywhere names and
// aliases are compared, so "Thornwick" / "thornwick" / "THORNWICK" always
// collide the same way (spec §3 invariant: aliases unique case-insensitive).
func lowerFold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
