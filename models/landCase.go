package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/config"
)

type CaseType string

const (
	CaseTypeNewRegistration CaseType = "new_registration"
	CaseTypeTransfer        CaseType = "transfer"
	CaseTypeSubdivision     CaseType = "subdivision"
	CaseTypeDispute         CaseType = "dispute"
)

type CaseStatus string

const (
	CaseStatusPendingPayment         CaseStatus = "pending_payment"
	CaseStatusSubmitted              CaseStatus = "submitted"
	CaseStatusPendingCommission      CaseStatus = "pending_commission"
	CaseStatusCommissionVisit        CaseStatus = "commission_visit"
	CaseStatusTechnicalValidation    CaseStatus = "technical_validation" // cadastre review
	CaseStatusOppositionPeriod       CaseStatus = "opposition_period"
	CaseStatusMunicipalInvestigation CaseStatus = "municipal_investigation"
	CaseStatusUnderReview            CaseStatus = "under_review"
	CaseStatusGovernorApproval       CaseStatus = "governor_approval"
	CaseStatusApproved               CaseStatus = "approved"
	CaseStatusRejected               CaseStatus = "rejected"
)

// IsTerminal reports whether no further status transitions are permitted.
// Metadata may still be annotated on terminal cases for audit purposes.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusApproved || s == CaseStatusRejected
}

func ValidCaseType(t CaseType) bool {
	switch t {
	case CaseTypeNewRegistration, CaseTypeTransfer, CaseTypeSubdivision, CaseTypeDispute:
		return true
	}
	return false
}

// CaseData is the per-case metadata bag. Each transition stamps its own fields;
// Merge never clobbers fields the patch does not set. The legacy system kept
// this as an untyped JSON blob; the fields every transition actually writes are
// typed here, with Extra carrying free-form intake form data.
type CaseData struct {
	ParcelNumber string           `json:"parcel_number,omitempty"`
	Locality     string           `json:"locality,omitempty"`
	Area         *decimal.Decimal `json:"area,omitempty"`

	Checklist map[string]bool `json:"checklist,omitempty"`

	VisitDate             *time.Time `json:"visit_date,omitempty"`
	CommissionScheduledAt *time.Time `json:"commission_scheduled_at,omitempty"`

	FieldReportURL   string     `json:"field_report_url,omitempty"`
	ReportUploadedAt *time.Time `json:"report_uploaded_at,omitempty"`

	// CadastreValidatedAt is the technical certification stamp the SOD gate
	// checks at approval time. Written only by the validate-technical-plan
	// transition, never inferred from status.
	CadastreValidatedAt *time.Time `json:"cadastre_validated_at,omitempty"`
	CadastreOfficerId   int        `json:"cadastre_officer_id,omitempty"`

	NoticeStartDate      *time.Time `json:"notice_start_date,omitempty"`
	NoticeExpirationDate *time.Time `json:"notice_expiration_date,omitempty"`

	GovernorRequestAt *time.Time `json:"governor_request_at,omitempty"`

	TechnicalQuery string     `json:"technical_query,omitempty"`
	LastQueryAt    *time.Time `json:"last_query_at,omitempty"`

	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectedBy      int        `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Merge applies a patch: set fields overwrite, unset fields are kept.
// Checklist and Extra merge key-wise.
func (d *CaseData) Merge(patch CaseData) {
	if patch.ParcelNumber != "" {
		d.ParcelNumber = patch.ParcelNumber
	}
	if patch.Locality != "" {
		d.Locality = patch.Locality
	}
	if patch.Area != nil {
		d.Area = patch.Area
	}
	if patch.Checklist != nil {
		if d.Checklist == nil {
			d.Checklist = make(map[string]bool, len(patch.Checklist))
		}
		for k, v := range patch.Checklist {
			d.Checklist[k] = v
		}
	}
	if patch.VisitDate != nil {
		d.VisitDate = patch.VisitDate
	}
	if patch.CommissionScheduledAt != nil {
		d.CommissionScheduledAt = patch.CommissionScheduledAt
	}
	if patch.FieldReportURL != "" {
		d.FieldReportURL = patch.FieldReportURL
	}
	if patch.ReportUploadedAt != nil {
		d.ReportUploadedAt = patch.ReportUploadedAt
	}
	if patch.CadastreValidatedAt != nil {
		d.CadastreValidatedAt = patch.CadastreValidatedAt
	}
	if patch.CadastreOfficerId != 0 {
		d.CadastreOfficerId = patch.CadastreOfficerId
	}
	if patch.NoticeStartDate != nil {
		d.NoticeStartDate = patch.NoticeStartDate
	}
	if patch.NoticeExpirationDate != nil {
		d.NoticeExpirationDate = patch.NoticeExpirationDate
	}
	if patch.GovernorRequestAt != nil {
		d.GovernorRequestAt = patch.GovernorRequestAt
	}
	if patch.TechnicalQuery != "" {
		d.TechnicalQuery = patch.TechnicalQuery
	}
	if patch.LastQueryAt != nil {
		d.LastQueryAt = patch.LastQueryAt
	}
	if patch.RejectionReason != "" {
		d.RejectionReason = patch.RejectionReason
	}
	if patch.RejectedBy != 0 {
		d.RejectedBy = patch.RejectedBy
	}
	if patch.RejectedAt != nil {
		d.RejectedAt = patch.RejectedAt
	}
	if patch.Extra != nil {
		if d.Extra == nil {
			d.Extra = make(map[string]interface{}, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			d.Extra[k] = v
		}
	}
}

func (d CaseData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *CaseData) Scan(value interface{}) error {
	if value == nil {
		*d = CaseData{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into CaseData", value)
	}
}

type Case struct {
	ID              int        `gorm:"primary_key" json:"id"`
	Type            CaseType   `gorm:"size:50;not null" json:"type"`
	Status          CaseStatus `gorm:"size:50;index;not null;default:pending_payment" json:"status"`
	InitiatorId     int        `gorm:"index;not null" json:"initiator_id"` // immutable after creation
	Initiator       *User      `gorm:"foreignKey:InitiatorId" json:"initiator,omitempty"`
	AssignedToId    *int       `gorm:"index" json:"assigned_to_id"` // the authority who finalized the case
	AssignedTo      *User      `gorm:"foreignKey:AssignedToId" json:"assigned_to,omitempty"`
	RelatedParcelId *int       `gorm:"index" json:"related_parcel_id"`
	RelatedParcel   *Parcel    `gorm:"foreignKey:RelatedParcelId" json:"related_parcel,omitempty"`
	Data            CaseData   `gorm:"type:json" json:"data"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Case) TableName() string { return "cases" }

func (c *Case) GetId() int { return c.ID }

// DisputesParcel reports whether filing this case contests an existing parcel,
// which flips the parcel's status to disputed at intake.
func (c *Case) DisputesParcel() bool {
	return c.Type == CaseTypeDispute && c.RelatedParcelId != nil
}

func GetCaseById(ctx context.Context, id int) (*Case, error) {
	db := config.GetDB()
	var caseItem Case
	if err := db.WithContext(ctx).Preload("Initiator").Preload("RelatedParcel").
		Where("id = ?", id).First(&caseItem).Error; err != nil {
		return nil, err
	}
	return &caseItem, nil
}

func ListCasesByStatuses(ctx context.Context, statuses []CaseStatus) ([]*Case, error) {
	db := config.GetDB()
	var cases []*Case
	q := db.WithContext(ctx).Preload("Initiator").Preload("RelatedParcel")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("updated_at DESC").Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

func ListCasesByInitiator(ctx context.Context, initiatorId int) ([]*Case, error) {
	db := config.GetDB()
	var cases []*Case
	if err := db.WithContext(ctx).Preload("RelatedParcel").
		Where("initiator_id = ?", initiatorId).
		Order("updated_at DESC").Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

// NewCase is the intake payload.
type NewCase struct {
	Type            CaseType `json:"type"`
	RelatedParcelId *int     `json:"related_parcel_id"`
	Data            CaseData `json:"data"`
}

func (input *NewCase) Validate(ctx context.Context) error {
	if input.Type == "" {
		input.Type = CaseTypeNewRegistration
	}
	if !ValidCaseType(input.Type) {
		return errors.New("invalid case type")
	}
	if input.RelatedParcelId != nil {
		var count int64
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&Parcel{}).Where("id = ?", *input.RelatedParcelId).Count(&count).Error; err != nil {
			return err
		}
		if count <= 0 {
			return errors.New("related parcel not found")
		}
	}
	return nil
}
