package utils

import (
	"math"
	"strconv"
	"strings"
)

func ParseIntDefault(v string, def int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// QueryLimits bounds the page size of list endpoints.
type QueryLimits struct {
	Default int
	Max     int
}

// Paginate turns 1-based page and limit query values into skip and limit.
// Missing or invalid values fall back to page 1 and the default limit; the
// limit is capped at Max and skip never overflows.
func (q QueryLimits) Paginate(pageStr, limitStr string) (skip, limit int64) {
	def, max := q.Default, q.Max
	if max <= 0 {
		max = 100
	}
	if def <= 0 || def > max {
		def = max
	}

	l := ParseIntDefault(limitStr, def)
	if l <= 0 {
		l = def
	}
	if l > max {
		l = max
	}
	p := ParseIntDefault(pageStr, 1)
	if p < 1 {
		p = 1
	}
	// huge pages clamp to the last representable offset
	pages := min(int64(p-1), math.MaxInt64/int64(l))
	return pages * int64(l), int64(l)
}
