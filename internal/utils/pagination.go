// Package utils holds tiny helpers that carry no domain knowledge.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def for empty or unparseable
// input. Query-parameter parsing relies on it so a malformed value degrades
// to the endpoint's default instead of failing the request.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
