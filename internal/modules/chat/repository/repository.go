package chat

import (
	"context"
	"errors"
	"time"

	"anoa.com/marketchat/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIdempotencyConflict means another send with the same client key
// committed first. The caller should load that message instead.
var ErrIdempotencyConflict = errors.New("idempotency key already used")

type Repository interface {
	FindThreadByID(ctx context.Context, id uuid.UUID) (*entity.ChatThread, error)
	// FindThreadByPair looks the pair up in both orders.
	FindThreadByPair(ctx context.Context, listingID, a, b uuid.UUID) (*entity.ChatThread, error)
	// CreateThreadIfAbsent inserts thread unless the canonical pair already
	// has one. It reports whether this call created the row.
	CreateThreadIfAbsent(ctx context.Context, thread *entity.ChatThread) (bool, error)
	ListThreadsForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.ChatThread, int64, error)

	// AppendMessage stores msg, advances the thread's last_message_at and,
	// when key is non-nil, records the idempotency key, all in one
	// transaction.
	AppendMessage(ctx context.Context, msg *entity.Message, key *entity.MessageIdempotencyKey) error
	FindIdempotentMessage(ctx context.Context, senderID, threadID uuid.UUID, key string, now time.Time) (*entity.Message, error)
	FindMessageInThread(ctx context.Context, threadID uuid.UUID, id uint64) (*entity.Message, error)
	// ListMessages returns messages with an id above afterID. A limit keeps
	// the lowest ids, so the highest id returned is a safe next cursor.
	ListMessages(ctx context.Context, threadID uuid.UUID, afterID uint64, limit int) ([]entity.Message, error)
	LastMessage(ctx context.Context, threadID uuid.UUID) (*entity.Message, error)
	// MarkThreadRead flips every unread message not sent by readerID.
	MarkThreadRead(ctx context.Context, threadID, readerID uuid.UUID, at time.Time) (int64, error)

	CountUnreadForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnreadInThread(ctx context.Context, threadID, userID uuid.UUID) (int64, error)
	CountUnreadByThread(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID) (map[uuid.UUID]int64, error)

	DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindThreadByID(ctx context.Context, id uuid.UUID) (*entity.ChatThread, error) {
	var thread entity.ChatThread
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *repository) FindThreadByPair(ctx context.Context, listingID, a, b uuid.UUID) (*entity.ChatThread, error) {
	var thread entity.ChatThread
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Where("((party_a_id = ? AND party_b_id = ?) OR (party_a_id = ? AND party_b_id = ?))", a, b, b, a).
		First(&thread).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *repository) CreateThreadIfAbsent(ctx context.Context, thread *entity.ChatThread) (bool, error) {
	thread.PartyAID, thread.PartyBID = entity.CanonicalPair(thread.PartyAID, thread.PartyBID)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(thread)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListThreadsForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.ChatThread, int64, error) {
	var threads []entity.ChatThread
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.ChatThread{}).
		Where("party_a_id = ? OR party_b_id = ?", userID, userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&threads).Error
	return threads, total, err
}

func (r *repository) AppendMessage(ctx context.Context, msg *entity.Message, key *entity.MessageIdempotencyKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		// Only move forward, so a slower concurrent send cannot rewind it.
		if err := tx.Model(&entity.ChatThread{}).
			Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", msg.ThreadID, msg.CreatedAt).
			Update("last_message_at", msg.CreatedAt).Error; err != nil {
			return err
		}

		if key == nil {
			return nil
		}
		// An expired record for the same key no longer guards anything.
		if err := tx.Where("sender_id = ? AND thread_id = ? AND client_key = ? AND expires_at <= ?",
			key.SenderID, key.ThreadID, key.Key, msg.CreatedAt).
			Delete(&entity.MessageIdempotencyKey{}).Error; err != nil {
			return err
		}

		key.MessageID = msg.ID
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(key)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIdempotencyConflict
		}
		return nil
	})
}

func (r *repository) FindIdempotentMessage(ctx context.Context, senderID, threadID uuid.UUID, key string, now time.Time) (*entity.Message, error) {
	var record entity.MessageIdempotencyKey
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND thread_id = ? AND client_key = ? AND expires_at > ?", senderID, threadID, key, now).
		First(&record).Error; err != nil {
		return nil, err
	}

	var msg entity.Message
	if err := r.db.WithContext(ctx).Where("id = ?", record.MessageID).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *repository) FindMessageInThread(ctx context.Context, threadID uuid.UUID, id uint64) (*entity.Message, error) {
	var msg entity.Message
	if err := r.db.WithContext(ctx).
		Where("id = ? AND thread_id = ?", id, threadID).
		First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *repository) ListMessages(ctx context.Context, threadID uuid.UUID, afterID uint64, limit int) ([]entity.Message, error) {
	var messages []entity.Message
	query := r.db.WithContext(ctx).Where("thread_id = ?", threadID)

	// created_at is stamped before the insert commits, so a message can land
	// with a higher id and an older timestamp than the cursor. The cursor and
	// the page window therefore follow ids; the page is still returned in
	// (created_at, id) order.
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		window := r.db.Model(&entity.Message{}).
			Select("id").
			Where("thread_id = ?", threadID)
		if afterID > 0 {
			window = window.Where("id > ?", afterID)
		}
		query = query.Where("id IN (?)", window.Order("id ASC").Limit(limit))
	}

	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *repository) LastMessage(ctx context.Context, threadID uuid.UUID) (*entity.Message, error) {
	var msg entity.Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Order("id DESC").
		First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *repository) MarkThreadRead(ctx context.Context, threadID, readerID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("thread_id = ? AND sender_id <> ? AND read = ?", threadID, readerID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) unreadFor(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Joins("JOIN chat_threads ON chat_threads.id = chat_messages.thread_id").
		Where("chat_messages.read = ? AND chat_messages.sender_id <> ?", false, userID).
		Where("(chat_threads.party_a_id = ? OR chat_threads.party_b_id = ?)", userID, userID)
}

func (r *repository) CountUnreadForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.unreadFor(ctx, userID).Count(&count).Error
	return count, err
}

func (r *repository) CountUnreadInThread(ctx context.Context, threadID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.unreadFor(ctx, userID).
		Where("chat_messages.thread_id = ?", threadID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUnreadByThread(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(threadIDs))
	if len(threadIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ThreadID uuid.UUID
		Unread   int64
	}
	err := r.unreadFor(ctx, userID).
		Select("chat_messages.thread_id AS thread_id, COUNT(*) AS unread").
		Where("chat_messages.thread_id IN ?", threadIDs).
		Group("chat_messages.thread_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ThreadID] = row.Unread
	}
	return counts, nil
}

func (r *repository) DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&entity.MessageIdempotencyKey{})
	return res.RowsAffected, res.Error
}
