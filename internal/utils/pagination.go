// Package utils provides small helpers shared by the HTTP and service
// layers. Nothing here knows about campaigns or claims.
package utils

import "strconv"

// Paging bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized (page, size) pair. Page is 1-based.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps number to >= 1 and size to [1, MaxPageSize]. A size of 0
// or less falls back to DefaultPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = DefaultPage
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// ParsePage reads raw query values. Missing or malformed values use the
// defaults; out-of-range values are clamped.
func ParsePage(number, size string) Page {
	n := AtoiDefault(number, DefaultPage)
	s := AtoiDefault(size, DefaultPageSize)
	if s < 1 {
		s = 1
	}
	return NewPage(n, s)
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages total rows span.
func (p Page) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether another page follows this one.
func (p Page) HasNext(total int64) bool { return p.Number < p.TotalPages(total) }

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
