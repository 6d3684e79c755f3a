package types

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool `json:"has_more"`
	NextOffset int  `json:"next_offset,omitempty"`
	TotalItems *int `json:"total_items,omitempty"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// Pagination bounds for history listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ClampPageSize applies the default and the ceiling to a requested limit.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
