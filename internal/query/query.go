// Package query builds and parses the parameter space of the job list endpoint.
//
// Build and Parse are two sides of the same contract: a refresh query and the
// pagination queries that follow it differ only by their cursor, so the pages
// they return tile one filter space without gaps or duplicates.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/urlqueue/urlqueue/internal/job"
)

// StatusFilter selects jobs by status. StatusAll disables the filter.
type StatusFilter string

const StatusAll StatusFilter = "all"

const (
	// DefaultLimit is the page size used when the request does not set one.
	DefaultLimit int64 = 10
	// MaxLimit caps the page size a client can request.
	MaxLimit int64 = 100
)

// Criteria is the user-selected combination of filter, search text and page size.
type Criteria struct {
	Status StatusFilter `json:"status" toml:"status"`
	Search string       `json:"search" toml:"search"`
	Limit  int          `json:"limit" toml:"limit"`
}

// Normalize maps equivalent criteria to one canonical value so they compare equal.
func (c Criteria) Normalize() Criteria {
	if c.Status == "" {
		c.Status = StatusAll
	}
	c.Search = strings.TrimSpace(c.Search)
	if c.Limit < 0 {
		c.Limit = 0
	}
	return c
}

func (c Criteria) Validate() error {
	c = c.Normalize()
	if c.Status != StatusAll && !job.Status(c.Status).Valid() {
		return fmt.Errorf("unknown status filter %q", c.Status)
	}
	if int64(c.Limit) > MaxLimit {
		return fmt.Errorf("limit %d exceeds maximum %d", c.Limit, MaxLimit)
	}
	return nil
}

// Build returns the list query for c positioned at cursor. Only non-default
// values are included: a zero cursor denotes the head of the list.
func Build(c Criteria, cursor int64) url.Values {
	c = c.Normalize()
	v := url.Values{}
	if c.Status != StatusAll {
		v.Set("status", string(c.Status))
	}
	if c.Search != "" {
		v.Set("q", c.Search)
	}
	if cursor != 0 {
		v.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	if c.Limit > 0 {
		v.Set("limit", strconv.Itoa(c.Limit))
	}
	return v
}

// Params is the server-side view of a list query.
type Params struct {
	Status []job.Status
	Search string
	Cursor int64
	Limit  int64
}

// Parse validates v and returns the list parameters it describes.
func Parse(v url.Values) (*Params, error) {
	p := &Params{Limit: DefaultLimit}

	for _, raw := range v["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" || s == string(StatusAll) {
				continue
			}
			if !job.Status(s).Valid() {
				return nil, fmt.Errorf("status: unknown value %q", s)
			}
			p.Status = append(p.Status, job.Status(s))
		}
	}

	p.Search = strings.TrimSpace(v.Get("q"))

	var err error
	if p.Cursor, err = parseInt(v, "cursor"); err != nil {
		return nil, err
	}
	if p.Cursor < 0 {
		return nil, fmt.Errorf("cursor: must not be negative")
	}

	limit, err := parseInt(v, "limit")
	if err != nil {
		return nil, err
	}
	switch {
	case limit < 0:
		return nil, fmt.Errorf("limit: must not be negative")
	case limit > MaxLimit:
		p.Limit = MaxLimit
	case limit > 0:
		p.Limit = limit
	}
	return p, nil
}

// LogParams is the server-side view of a log query.
type LogParams struct {
	Cursor int64
}

func ParseLogs(v url.Values) (*LogParams, error) {
	cursor, err := parseInt(v, "cursor")
	if err != nil {
		return nil, err
	}
	if cursor < 0 {
		return nil, fmt.Errorf("cursor: must not be negative")
	}
	return &LogParams{Cursor: cursor}, nil
}

func parseInt(v url.Values, key string) (int64, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, s)
	}
	return n, nil
}

// Filter converts p to the store's list filter.
func (p *Params) Filter() job.ListFilter {
	return job.ListFilter{
		Status: p.Status,
		Search: p.Search,
		Cursor: p.Cursor,
		Limit:  p.Limit,
	}
}
