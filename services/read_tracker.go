package services

import (
	"context"
	"errors"

	"loop-backend/models"
	"loop-backend/telemetry"
	"loop-backend/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadTracker maintains the read markers of direct messages. Every answer is
// a live query; nothing is cached.
type ReadTracker struct {
	db      *gorm.DB
	metrics *telemetry.Metrics
}

func NewReadTracker(db *gorm.DB, metrics *telemetry.Metrics) *ReadTracker {
	return &ReadTracker{db: db, metrics: metrics}
}

// MarkAsRead records that userID read messageID. Repeated calls are no-ops.
// Only the recipient of a message can mark it.
func (t *ReadTracker) MarkAsRead(ctx context.Context, userID, messageID uint) error {
	var msg models.DirectMessage
	err := t.db.WithContext(ctx).First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFound("message %d not found", messageID)
	}
	if err != nil {
		return utils.Internal("find message", err)
	}
	if msg.RecipientID != userID {
		return utils.Unauthorized("not the recipient of this message")
	}

	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MessageRead{MessageID: messageID, UserID: userID})
	if res.Error != nil {
		return utils.Internal("mark read", res.Error)
	}
	t.metrics.ReadMarkersCreated(res.RowsAffected)
	return nil
}

// MarkThreadRead marks every message counterpartID sent to userID that has no
// marker yet. It returns the number of markers created.
func (t *ReadTracker) MarkThreadRead(ctx context.Context, userID, counterpartID uint) (int64, error) {
	return t.markThreadRead(t.db.WithContext(ctx), userID, counterpartID)
}

func (t *ReadTracker) markThreadRead(tx *gorm.DB, userID, counterpartID uint) (int64, error) {
	var ids []uint
	if err := t.unreadQuery(tx, userID, counterpartID).Pluck("direct_messages.id", &ids).Error; err != nil {
		return 0, utils.Internal("find unread", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	rows := make([]models.MessageRead, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.MessageRead{MessageID: id, UserID: userID})
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 200)
	if res.Error != nil {
		return 0, utils.Internal("mark thread read", res.Error)
	}
	t.metrics.ReadMarkersCreated(res.RowsAffected)
	return res.RowsAffected, nil
}

// UnreadCount counts the messages counterpartID sent to viewerID that viewerID
// has not read.
func (t *ReadTracker) UnreadCount(ctx context.Context, viewerID, counterpartID uint) (int64, error) {
	var n int64
	if err := t.unreadQuery(t.db.WithContext(ctx), viewerID, counterpartID).Count(&n).Error; err != nil {
		return 0, utils.Internal("count unread", err)
	}
	return n, nil
}

// Seen reports whether userID holds a marker for messageID.
func (t *ReadTracker) Seen(ctx context.Context, messageID, userID uint) (bool, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&models.MessageRead{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&n).Error
	if err != nil {
		return false, utils.Internal("check read marker", err)
	}
	return n > 0, nil
}

func (t *ReadTracker) unreadQuery(tx *gorm.DB, viewerID, counterpartID uint) *gorm.DB {
	return tx.Model(&models.DirectMessage{}).
		Joins("LEFT JOIN message_reads ON message_reads.message_id = direct_messages.id AND message_reads.user_id = ?", viewerID).
		Where("direct_messages.sender_id = ? AND direct_messages.recipient_id = ?", counterpartID, viewerID).
		Where("message_reads.id IS NULL")
}
