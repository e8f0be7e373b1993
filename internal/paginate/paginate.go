// Package paginate centralizes the pagination clamping and page-metadata
// computation shared by the Rule Store, Event Store, and the
// /node/metrics HTTP route (spec §4.7, §6).
package paginate

import "math"

const (
	// MinPageSize and MaxPageSize bound page_size (spec §4.7).
	MinPageSize = 1
	MaxPageSize = 1000
	// DefaultPageSize replaces a page_size below MinPageSize.
	DefaultPageSize = 20
)

// Clamp coerces page and pageSize into their valid ranges: page < 1 → 1,
// pageSize outside [1,1000] → 20 when below 1, or clamped to 1000 when
// above (spec §8 "Boundary behaviors").
func Clamp(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < MinPageSize:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Page is a generic paginated result set with the metadata every list
// endpoint echoes (spec §6 "/node/metrics" headers and body object).
type Page[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// New builds a Page from already-fetched items plus the clamped
// page/pageSize and the total row count.
func New[T any](items []T, page, pageSize, total int) Page[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
