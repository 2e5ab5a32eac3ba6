// Package utils holds small helpers shared by the HTTP and coordination
// layers that carry no domain logic of their own.
package utils

import (
	"strconv"
	"strings"
)

// ClampedInt parses s as a base-10 int and clamps it to [lo, hi]. Empty or
// unparsable input yields def, which is clamped too.
func ClampedInt(s string, def, lo, hi int) int {
	n := def
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		n = v
	}
	return min(max(n, lo), hi)
}
