package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// CaseEventRecord is the transactional outbox row for case notifications.
// It is written inside the same DB transaction as the state change; the
// dispatcher publishes to Pub/Sub after commit.
type CaseEventRecord struct {
	ID            int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	CaseId        int        `gorm:"index;not null" json:"case_id"`
	CaseType      CaseType   `gorm:"size:50;not null" json:"case_type"`
	EventType     string     `gorm:"size:100;not null" json:"event_type"`
	FromStatus    CaseStatus `gorm:"size:50" json:"from_status"`
	ToStatus      CaseStatus `gorm:"size:50" json:"to_status"`
	ActorId       int        `gorm:"index" json:"actor_id"`
	Payload       []byte     `gorm:"type:blob" json:"payload"`
	OccurredAt    time.Time  `gorm:"index;not null" json:"occurred_at"`
	CorrelationId string     `gorm:"size:64;index" json:"correlation_id"`

	// Publish metadata, advanced only by the dispatcher.
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CaseEventRecord) TableName() string { return "case_event_records" }

func (r *CaseEventRecord) GetId() int { return r.ID }

// PublishCaseEvent writes the event record inside the caller's DB transaction
// but does NOT publish to Pub/Sub. Publishing happens asynchronously in the
// outbox dispatcher after commit, so a rollback never leaks a notification.
func PublishCaseEvent(ctx context.Context, tx *gorm.DB, caseItem *Case, eventType string, fromStatus CaseStatus, actorId int, payload interface{}) error {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := CaseEventRecord{
		CaseId:        caseItem.ID,
		CaseType:      caseItem.Type,
		EventType:     eventType,
		FromStatus:    fromStatus,
		ToStatus:      caseItem.Status,
		ActorId:       actorId,
		Payload:       payloadBytes,
		OccurredAt:    time.Now(),
		CorrelationId: correlationIdFromContextOrNew(ctx),
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToCaseEventMessage(record CaseEventRecord) config.CaseEventMessage {
	return config.CaseEventMessage{
		ID:            record.ID,
		CaseId:        record.CaseId,
		CaseType:      string(record.CaseType),
		EventType:     record.EventType,
		FromStatus:    string(record.FromStatus),
		ToStatus:      string(record.ToStatus),
		ActorId:       record.ActorId,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
