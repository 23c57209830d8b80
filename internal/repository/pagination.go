package repository

import "gorm.io/gorm"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate is a GORM scope for 1-based page numbers.
func Paginate(page, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		switch {
		case limit <= 0:
			limit = DefaultPageSize
		case limit > MaxPageSize:
			limit = MaxPageSize
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}
