package option

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"licensing-controlplane/pkg/db/pagination"
)

// QueryOption mutates a gorm query before execution.
type QueryOption func(*gorm.DB) *gorm.DB

func WithLimit(n int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if n > 0 {
			return tx.Limit(n)
		}
		return tx
	}
}

func WithOffset(n int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if n > 0 {
			return tx.Offset(n)
		}
		return tx
	}
}

func WithOrder(expr string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(expr)
	}
}

func WithPreload(assoc string, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Preload(assoc, args...)
	}
}

// WithLockForUpdate takes a row lock for the duration of the surrounding
// transaction. No-op on dialects without FOR UPDATE support.
func WithLockForUpdate() QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if tx.Dialector.Name() == "sqlite" {
			return tx
		}
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

// ApplyPagination applies cursor pagination over (created_at, id). The query
// fetches limit+1 rows so callers can detect whether more pages remain.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}

		if p.Cursor != "" {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil && cursor.ID != "" {
				// Bind a time value so every dialect compares timestamps,
				// not strings.
				if ts, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					tx = tx.Where("(created_at, id) < (?, ?)", ts, cursor.ID)
				}
			}
		}

		return tx.Order("created_at DESC").Order("id DESC").Limit(limit + 1)
	}
}
