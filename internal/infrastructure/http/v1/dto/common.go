// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"salesflow/internal/core/id"
	"salesflow/internal/domain"
)

// --- Pagination ---

// ListQuery carries the common list parameters.
type ListQuery struct {
	Search         string `form:"search"`
	OrderBy        string `form:"orderBy"`
	IncludeDeleted bool   `form:"includeDeleted"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts the query to a domain filter.
func (q ListQuery) ToFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = q.Search
	f.IncludeDeleted = q.IncludeDeleted
	f.OrderBy = q.OrderBy
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	return f
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a domain list result, mapping each item with fn.
func FromListResult[S, T any](r domain.ListResult[S], fn func(S) T) ListResponse[T] {
	items := make([]T, len(r.Items))
	for i, it := range r.Items {
		items[i] = fn(it)
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Deletion ---
type SetDeletionMarkRequest struct {
	Marked bool `json:"marked"`
}
