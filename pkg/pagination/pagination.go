// Package pagination reads limit/offset query parameters and wraps list
// results with totals and neighbour links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit and ?offset. Missing or invalid values fall back
// to DefaultLimit and 0; limits above MaxLimit are clamped.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

func (p Params) HasNext(total int) bool { return p.Offset+p.Limit < total }

func (p Params) HasPrevious() bool { return p.Offset > 0 }

func (p Params) NextOffset() int { return p.Offset + p.Limit }

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int { return max(p.Offset-p.Limit, 0) }

type Links struct {
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Response is the envelope of every list endpoint.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   *Links      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	return &Response{Data: data, Total: total, Limit: limit, Offset: offset, HasMore: p.HasNext(total)}
}

// WithLinks adds next and previous links relative to u. Query parameters
// other than limit and offset, such as list filters, are carried over.
func (r *Response) WithLinks(u *url.URL) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	var links Links
	if p.HasNext(r.Total) {
		links.Next = pageURL(u, p.Limit, p.NextOffset())
	}
	if p.HasPrevious() {
		links.Previous = pageURL(u, p.Limit, p.PreviousOffset())
	}
	if links != (Links{}) {
		r.Links = &links
	}
	return r
}

func pageURL(u *url.URL, limit, offset int) string {
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return (&url.URL{Path: u.Path, RawQuery: q.Encode()}).String()
}
