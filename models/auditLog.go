package models

import (
	"context"
	"time"

	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
)

// AuditLog records every entity mutation that goes through the audited write
// path. UserId is nil for system-originated writes (dispatchers, seeders).
type AuditLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	ReferenceId   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255;index" json:"reference_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text" json:"description"`
	UserId        *int      `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) GetId() int { return a.ID }

// auditRedactions maps sensitive JSON keys to their replacement markers.
// Seal hashes are summarized rather than dropped so a reviewer can still
// see that a seal was present.
var auditRedactions = map[string]string{
	"password_hash":     "[REDACTED]",
	"digital_seal_hash": "[SEAL]",
}

// sanitizeForAudit serializes a snapshot with sensitive fields redacted.
// Works on the JSON form so nested objects are covered too.
func sanitizeForAudit(obj interface{}) string {
	if obj == nil {
		return ""
	}
	raw, err := utils.MarshalToJSON(obj)
	if err != nil {
		return ""
	}
	var decoded interface{}
	if err := utils.UnmarshalFromJSON([]byte(raw), &decoded); err != nil {
		return raw
	}
	redactValue(decoded)
	clean, err := utils.MarshalToJSON(decoded)
	if err != nil {
		return raw
	}
	return clean
}

func redactValue(v interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			if marker, ok := auditRedactions[k]; ok {
				if s, isStr := child.(string); isStr && s != "" {
					node[k] = marker
				}
				continue
			}
			redactValue(child)
		}
	case []interface{}:
		for _, child := range node {
			redactValue(child)
		}
	}
}

func writeAudit(tx *gorm.DB, actionType string, referenceId int, referenceType string, before, after interface{}, description string) error {
	ctx := tx.Statement.Context

	audit := AuditLog{
		ActionType:    actionType,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		Before:        sanitizeForAudit(before),
		After:         sanitizeForAudit(after),
		Description:   description,
	}

	// Actor comes from the request context. Absent actor means a system write.
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		audit.UserId = &userId
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		audit.UserName = userName
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		audit.CorrelationId = correlationId
	}

	return tx.Create(&audit).Error
}

type auditable interface {
	GetId() int
	TableName() string
}

// CreateWithAudit persists the entity and its audit record in the caller's
// transaction. All workflow writes go through these wrappers instead of a
// global ORM hook so the audit actor is always explicit.
func CreateWithAudit[T auditable](tx *gorm.DB, entity T, description string) error {
	if err := tx.Create(entity).Error; err != nil {
		return err
	}
	return writeAudit(tx, "CREATE", entity.GetId(), entity.TableName(), nil, entity, description)
}

func SaveWithAudit[T auditable](tx *gorm.DB, before T, entity T, description string) error {
	if err := tx.Save(entity).Error; err != nil {
		return err
	}
	return writeAudit(tx, "UPDATE", entity.GetId(), entity.TableName(), before, entity, description)
}

func DeleteWithAudit[T auditable](tx *gorm.DB, entity T, description string) error {
	if err := tx.Delete(entity).Error; err != nil {
		return err
	}
	return writeAudit(tx, "DELETE", entity.GetId(), entity.TableName(), entity, nil, description)
}

func GetAuditLogs(ctx context.Context, referenceId *int, referenceType *string, userId *int, limit int) ([]*AuditLog, error) {
	db := config.GetDB()
	var results []*AuditLog

	dbCtx := db.WithContext(ctx)
	if referenceId != nil && *referenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", *referenceId)
	}
	if referenceType != nil && *referenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", *userId)
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if err := dbCtx.Order("created_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
