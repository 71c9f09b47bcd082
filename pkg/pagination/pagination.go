package pagination

import (
	"math"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/common"
)

const (
	// DefaultLimit is the default number of items per page
	DefaultLimit = 20
	// MaxLimit is the maximum number of items per page
	MaxLimit = 100
)

// Params represents pagination parameters
type Params struct {
	Limit  int `form:"limit" json:"limit"`
	Offset int `form:"offset" json:"offset"`
}

// ParseParams reads limit and offset from the query, falling back to
// defaults for missing or malformed values.
func ParseParams(c *gin.Context) Params {
	params := Params{Limit: DefaultLimit}
	if err := c.ShouldBindQuery(&params); err != nil {
		return Params{Limit: DefaultLimit}
	}

	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	return params
}

// Page returns the window of items selected by p. The result is never nil.
func Page[T any](items []T, p Params) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// BuildMeta creates pagination metadata for responses
func BuildMeta(p Params, total int) *common.Meta {
	meta := &common.Meta{
		Limit:  p.Limit,
		Offset: p.Offset,
		Total:  int64(total),
	}
	if p.Limit > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	return meta
}
