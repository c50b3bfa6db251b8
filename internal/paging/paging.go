// Package paging describes one page of a list returned by the HR API.
package paging

import (
	"net/url"
	"strconv"
)

const windowSize = 5

// Page mirrors the API's {items, total, page} list envelope.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func (p Page[T]) Current() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

func (p Page[T]) HasPrev() bool { return p.Current() > 1 }

func (p Page[T]) HasNext() bool { return p.Current() < p.TotalPages() }

func (p Page[T]) PrevPage() int { return max(1, p.Current()-1) }

func (p Page[T]) NextPage() int { return min(p.TotalPages(), p.Current()+1) }

// FirstIndex and LastIndex are the 1-based positions of the page's items
// within the full list, for "Showing 11 to 20 of 42".
func (p Page[T]) FirstIndex() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Current()-1)*p.Limit + 1
}

func (p Page[T]) LastIndex() int {
	return min(p.Current()*p.Limit, p.Total)
}

// Window returns up to five page numbers centred on the current page where
// possible.
func (p Page[T]) Window() []int {
	total := p.TotalPages()
	current := p.Current()
	n := min(windowSize, total)
	start := 1
	if total > windowSize {
		switch {
		case current <= 3:
		case current >= total-2:
			start = total - windowSize + 1
		default:
			start = current - 2
		}
	}
	pages := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, start+i)
	}
	return pages
}

// Query encodes page and limit plus any non-empty extra filters.
func Query(page, limit int, extra map[string]string) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(max(1, page)))
	v.Set("limit", strconv.Itoa(max(1, limit)))
	for k, val := range extra {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v.Encode()
}
