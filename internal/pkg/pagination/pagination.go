package pagination

import (
	"strconv"

	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query holds parsed window parameters.
type Query struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=, clamping both to sane values.
func FromContext(c *gin.Context) Query {
	limit := parseIntOr(c.Query("limit"), DefaultLimit)
	offset := parseIntOr(c.Query("offset"), 0)

	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Query{Limit: limit, Offset: offset}
}

// Paginate counts the query, applies the window and returns the metadata.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}

	if err := db.Offset(q.Offset).Limit(q.Limit).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}

	totalPage := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Offset/q.Limit + 1,
		TotalPage:   totalPage,
		Size:        q.Limit,
		HasNextPage: int64(q.Offset+q.Limit) < total,
	}, nil
}

func parseIntOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
