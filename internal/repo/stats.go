// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides cheap aggregate queries used for weak
// ETag generation on list endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// ThreadsStats returns the thread count and the latest update timestamp for
// an identity. The pair changes whenever the listing would change, which is
// exactly what a weak ETag needs. maxUpdated is nil when the identity has no
// threads.
func ThreadsStats(ctx context.Context, db *gorm.DB, identityID string) (count int64, maxUpdated *time.Time, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("identity_id = ?", identityID).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		Max *time.Time
	}
	err = db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Select("MAX(updated_at) AS max").
		Where("identity_id = ?", identityID).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, row.Max, nil
}
