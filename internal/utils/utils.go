// Package utils provides small reusable helpers shared by the front end packages.
//
// Functional Programming Utilities:
//   - Map, Filter, Fold: generic slice processing.
//
// Slices:
//   - Contains, Uniq
//
// Parsing:
//   - ParseID: strict positive int64 ids from path/query params.
package utils

import (
	"fmt"
	"strconv"
	"strings"
)

/* some Functional Programming in Go */

// Map applies f to every element of s
func Map[S ~[]E, E any, R any](s S, f func(E) R) []R {
	result := make([]R, len(s))
	for i, e := range s {
		result[i] = f(e)
	}

	return result
}

// Filter keeps the elements of s for which f is true, never returns nil
func Filter[S ~[]E, E any](s S, f func(E) bool) S {
	result := S{}
	for _, v := range s {
		if f(v) {
			result = append(result, v)
		}
	}

	return result
}

// Fold is a left fold: f is applied in slice order, starting from init
func Fold[E any, A any](s []E, init A, f func(acc A, next E) A) A {
	cur := init
	for _, v := range s {
		cur = f(cur, v)
	}

	return cur
}

// Contains reports whether val is in slice, case-insensitively
func Contains(slice []string, val string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, val) {
			return true
		}
	}

	return false
}

// Uniq drops empty strings and duplicates, keeping first-seen order
func Uniq(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

// ParseID parses a strictly positive decimal id
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}

	return id, nil
}
