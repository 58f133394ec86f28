package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatThread is the single conversation between two parties about one
// listing. PartyAID is always the smaller of the two ids (see CanonicalPair),
// and idx_chat_threads_pair makes the store reject a second thread for the
// same listing and pair.
type ChatThread struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_chat_threads_pair,priority:1" json:"listing_id"`
	PartyAID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_chat_threads_pair,priority:2;index" json:"party_a_id"`
	PartyBID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_chat_threads_pair,priority:3;index" json:"party_b_id"`
	InitiatorID   uuid.UUID  `gorm:"type:uuid;not null" json:"initiator_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
}

func (t *ChatThread) TableName() string {
	return "chat_threads"
}

func (t *ChatThread) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID, err = uuid.NewV7()
	}
	return
}

// HasParticipant reports whether userID is one of the two parties.
func (t *ChatThread) HasParticipant(userID uuid.UUID) bool {
	return t.PartyAID == userID || t.PartyBID == userID
}

// OtherParty returns the participant that is not userID.
func (t *ChatThread) OtherParty(userID uuid.UUID) uuid.UUID {
	if t.PartyAID == userID {
		return t.PartyBID
	}
	return t.PartyAID
}

// CanonicalPair orders two user ids so that (a, b) and (b, a) produce the
// same key.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// Message rows are append-only. ID is assigned by the store in insertion
// order and breaks ties between equal CreatedAt values.
type Message struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_chat_messages_order,priority:1" json:"thread_id"`
	SenderID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"not null;index:idx_chat_messages_order,priority:2" json:"created_at"`
	Read      bool       `gorm:"not null;default:false;index" json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func (m *Message) TableName() string {
	return "chat_messages"
}

// MessageIdempotencyKey remembers which message a client supplied key
// produced, so a retried send returns the original message.
type MessageIdempotencyKey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chat_idem_key,priority:1" json:"sender_id"`
	ThreadID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chat_idem_key,priority:2" json:"thread_id"`
	Key       string    `gorm:"column:client_key;size:64;not null;uniqueIndex:idx_chat_idem_key,priority:3" json:"key"`
	MessageID uint64    `gorm:"not null" json:"message_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (k *MessageIdempotencyKey) TableName() string {
	return "chat_message_idempotency"
}
