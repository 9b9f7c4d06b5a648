package utils

import "github.com/gofiber/fiber/v2"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	// MaxPage keeps Offset well inside int32 range.
	MaxPage = 1_000_000
)

// Pagination is the page window of a list query and, once the total is known, its envelope.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination clamps page and limit into their allowed ranges.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Pagination{Page: page, Limit: limit}
}

// ParsePagination reads ?page= and ?limit= from the request.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(c.QueryInt("page", DefaultPage), c.QueryInt("limit", DefaultLimit))
}

// Offset is the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// WithTotal returns a copy carrying total and the derived page count.
func (p Pagination) WithTotal(total int64) Pagination {
	p.Total = total
	if total <= 0 || p.Limit <= 0 {
		p.TotalPages = 0
		return p
	}
	p.TotalPages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return p
}
