package activity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrInvalidLimit indicates a non-positive page size. The paginator fails
// fast without touching storage.
var ErrInvalidLimit = errors.New("activity: limit must be a positive integer")

// seekWindow is one bounded slice of the activity log in ascending
// (created_at_us, id) order plus the outgoing cursor pair.
type seekWindow struct {
	Items          []Activity
	NextCursor     string
	PreviousCursor string
}

// seekActivities computes a keyset-bounded window over the activity log of
// one todo. The comparison key is (created_at_us, id) so pages stay stable
// while the log grows and ties on the timestamp still have a total order.
// When both bounds are supplied the after bound wins; results come back
// ascending regardless of the seek direction. One extra row beyond limit is
// fetched to detect whether a following page exists.
func seekActivities(ctx context.Context, db *gorm.DB, todoID TodoID, limit int, cursor DecodedCursor) (seekWindow, error) {
	if limit <= 0 {
		return seekWindow{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	after := cursor.Next
	before := cursor.Previous
	if after != nil {
		before = nil
	}

	query := db.WithContext(ctx).
		Model(&Activity{}).
		Where("todo_id = ?", todoID.String())

	backward := false
	switch {
	case after != nil:
		query = query.Where(
			"created_at_us > ? OR (created_at_us = ? AND id > ?)",
			after.CreatedAtMicros, after.CreatedAtMicros, after.ID,
		).Order("created_at_us ASC, id ASC")
	case before != nil:
		backward = true
		query = query.Where(
			"created_at_us < ? OR (created_at_us = ? AND id < ?)",
			before.CreatedAtMicros, before.CreatedAtMicros, before.ID,
		).Order("created_at_us DESC, id DESC")
	default:
		query = query.Order("created_at_us ASC, id ASC")
	}

	var rows []Activity
	if err := query.Limit(limit + 1).Find(&rows).Error; err != nil {
		return seekWindow{}, err
	}

	overflow := len(rows) > limit
	if overflow {
		rows = rows[:limit]
	}
	if backward {
		reverseActivities(rows)
	}

	window := seekWindow{Items: rows}
	if len(rows) == 0 {
		return window, nil
	}

	first := positionOf(rows[0])
	last := positionOf(rows[len(rows)-1])

	if backward {
		// Seeking backward: the overflow row sits before the window, and the
		// record the bound came from sits after it.
		if overflow {
			window.PreviousCursor = EncodePreviousCursor(first)
		}
		window.NextCursor = EncodeNextCursor(last)
		return window, nil
	}

	if overflow {
		window.NextCursor = EncodeNextCursor(last)
	}
	if after != nil {
		window.PreviousCursor = EncodePreviousCursor(first)
	}
	return window, nil
}

func positionOf(record Activity) SeekPosition {
	return SeekPosition{CreatedAtMicros: record.CreatedAtMicros, ID: record.ID}
}

func reverseActivities(rows []Activity) {
	for left, right := 0, len(rows)-1; left < right; left, right = left+1, right-1 {
		rows[left], rows[right] = rows[right], rows[left]
	}
}
