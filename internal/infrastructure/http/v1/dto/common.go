// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import "ordertx/internal/core/apperror"

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = 20
	}
}

// Offset calculates the row offset.
func (p *PaginationRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ListResponse wraps one page of results.
type ListResponse[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// --- Errors ---

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// FromError builds the per-item error of a batch response. Nil stays nil.
func FromError(err error) *ErrorResponse {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return &ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	}
	return &ErrorResponse{Code: apperror.CodeInternal, Message: "Internal server error"}
}
