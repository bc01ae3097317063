package workflow

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NoticePeriodDays is the statutory public opposition window.
const NoticePeriodDays = 30

// loadCaseForUpdate reads the case under a row lock so concurrent transitions
// on the same case serialize. Must be called inside a transaction.
func loadCaseForUpdate(tx *gorm.DB, caseId int) (*models.Case, error) {
	var caseItem models.Case
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", caseId).First(&caseItem).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewRegistryError(utils.ErrKindNotFound, "case not found")
		}
		return nil, utils.WrapPersistence(err)
	}
	return &caseItem, nil
}

// commitTransition persists the mutated case with its audit record and the
// outbox event in the caller's transaction.
func commitTransition(tx *gorm.DB, logger *logrus.Logger, before models.Case, caseItem *models.Case, eventType string, actorId int, description string) error {
	if err := models.SaveWithAudit(tx, &before, caseItem, description); err != nil {
		config.LogError(logger, "transitionEngine.go", "commitTransition", "SaveWithAudit", caseItem.ID, err)
		return utils.WrapPersistence(err)
	}
	ctx := tx.Statement.Context
	if err := models.PublishCaseEvent(ctx, tx, caseItem, eventType, before.Status, actorId, caseItem.Data); err != nil {
		config.LogError(logger, "transitionEngine.go", "commitTransition", "PublishCaseEvent", caseItem.ID, err)
		return utils.WrapPersistence(err)
	}
	return nil
}

func requireNotTerminal(caseItem *models.Case) error {
	if caseItem.Status.IsTerminal() {
		return utils.NewRegistryError(utils.ErrKindInvalidState, "case is closed")
	}
	return nil
}

// PayFees confirms the filing fee and routes the case into its track:
// new registrations go straight to the field commission queue, subdivisions
// to municipal investigation, everything else to administrative review.
func PayFees(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, paymentReference string) (*models.Case, error) {
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if actor.Id != caseItem.InitiatorId && !actor.IsAdmin() {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "only the applicant can pay filing fees")
	}
	if caseItem.Status != models.CaseStatusPendingPayment {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "application is not in payment state")
	}

	before := *caseItem
	switch caseItem.Type {
	case models.CaseTypeNewRegistration:
		caseItem.Status = models.CaseStatusPendingCommission
	case models.CaseTypeSubdivision:
		caseItem.Status = models.CaseStatusMunicipalInvestigation
	default:
		caseItem.Status = models.CaseStatusSubmitted
	}
	if paymentReference != "" {
		caseItem.Data.Merge(models.CaseData{Extra: map[string]interface{}{
			"payment_reference": paymentReference,
		}})
	}

	if err := commitTransition(tx, logger, before, caseItem, "case.fees_paid", actor.Id, "Filing fees confirmed"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// AuthorizeCommission completes administrative vetting and releases the case
// to the field commission.
func AuthorizeCommission(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, checklist map[string]bool) (*models.Case, error) {
	if !actor.HasPermission("cases.review") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "administrative vetting authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if caseItem.Status != models.CaseStatusSubmitted && caseItem.Status != models.CaseStatusUnderReview {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "case is not in administrative review phase")
	}

	before := *caseItem
	if checklist != nil {
		caseItem.Data.Merge(models.CaseData{Checklist: checklist})
	}
	caseItem.Status = models.CaseStatusPendingCommission

	if err := commitTransition(tx, logger, before, caseItem, "case.commission_authorized", actor.Id, "Field commission authorized"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// ScheduleVisit books the land commission site visit. Legal from any open
// state: a technical query bounces the case back to CommissionVisit, and the
// commission must be able to rebook the visit from there.
func ScheduleVisit(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, visitDate time.Time) (*models.Case, error) {
	if !actor.HasPermission("cases.schedule_visit") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "commission scheduling authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if err := requireNotTerminal(caseItem); err != nil {
		return nil, err
	}

	before := *caseItem
	now := time.Now()
	caseItem.Status = models.CaseStatusCommissionVisit
	caseItem.Data.Merge(models.CaseData{
		VisitDate:             &visitDate,
		CommissionScheduledAt: &now,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.visit_scheduled", actor.Id, "Commission visit scheduled"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// UploadReport attaches the surveyor's field report and hands the case to the
// cadastre for technical review.
func UploadReport(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, reportURL string) (*models.Case, error) {
	if !actor.HasRole(models.UserRoleSurveyor, models.UserRoleAgent) {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "only field professionals can file reports")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if caseItem.Status != models.CaseStatusCommissionVisit {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "case has no pending commission visit")
	}

	before := *caseItem
	now := time.Now()
	caseItem.Status = models.CaseStatusTechnicalValidation
	caseItem.Data.Merge(models.CaseData{
		FieldReportURL:   reportURL,
		ReportUploadedAt: &now,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.report_uploaded", actor.Id, "Field report uploaded"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// ValidateTechnicalPlan is the cadastre certification. It stamps the
// validation timestamp and officer identity that the approval gate will later
// require, then opens the public opposition period.
func ValidateTechnicalPlan(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int) (*models.Case, error) {
	if !actor.HasPermission("cases.validate_technical") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "technical certification authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if caseItem.Status != models.CaseStatusTechnicalValidation {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "case is not in technical validation phase")
	}

	before := *caseItem
	now := time.Now()
	expiration := now.AddDate(0, 0, NoticePeriodDays)
	caseItem.Status = models.CaseStatusOppositionPeriod
	caseItem.Data.Merge(models.CaseData{
		CadastreValidatedAt:  &now,
		CadastreOfficerId:    actor.Id,
		NoticeExpirationDate: &expiration,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.technical_validated", actor.Id, "Technical plan validated"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// TechnicalQuery bounces a case back to the field geometer for corrections
// without a full rejection. Allowed from any open state; the cadastre may
// spot defects at any point before closure.
func TechnicalQuery(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, reason string) (*models.Case, error) {
	if !actor.HasPermission("cases.validate_technical") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "technical certification authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if err := requireNotTerminal(caseItem); err != nil {
		return nil, err
	}

	before := *caseItem
	now := time.Now()
	caseItem.Status = models.CaseStatusCommissionVisit
	caseItem.Data.Merge(models.CaseData{
		TechnicalQuery: reason,
		LastQueryAt:    &now,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.technical_query", actor.Id, "Technical query issued"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// StartNotice opens the public opposition period manually, for tracks that do
// not pass through cadastre certification (transfers, disputes).
func StartNotice(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int) (*models.Case, error) {
	if !actor.HasPermission("cases.start_notice") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "notice authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	switch caseItem.Status {
	case models.CaseStatusSubmitted, models.CaseStatusUnderReview,
		models.CaseStatusMunicipalInvestigation, models.CaseStatusTechnicalValidation:
	default:
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "case cannot enter public notice from its current phase")
	}

	before := *caseItem
	now := time.Now()
	expiration := now.AddDate(0, 0, NoticePeriodDays)
	caseItem.Status = models.CaseStatusOppositionPeriod
	caseItem.Data.Merge(models.CaseData{
		NoticeStartDate:      &now,
		NoticeExpirationDate: &expiration,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.notice_started", actor.Id, "Public notice period started"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// RequestGovernorApproval escalates the case for the governor's signature
// once the opposition period has run.
func RequestGovernorApproval(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int) (*models.Case, error) {
	if !actor.HasPermission("cases.seal") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "conservator authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if caseItem.Status != models.CaseStatusOppositionPeriod {
		return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "case is not in the public opposition period")
	}

	before := *caseItem
	now := time.Now()
	caseItem.Status = models.CaseStatusGovernorApproval
	caseItem.Data.Merge(models.CaseData{GovernorRequestAt: &now})

	if err := commitTransition(tx, logger, before, caseItem, "case.governor_requested", actor.Id, "Sent for governor approval"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// Review updates the vetting checklist and optionally parks the case in a
// review state. Final rejection never goes through here; that is the
// conservator's sealed action.
func Review(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, checklist map[string]bool, targetStatus *models.CaseStatus) (*models.Case, error) {
	if !actor.HasPermission("cases.review") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "administrative vetting authority required")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if err := requireNotTerminal(caseItem); err != nil {
		return nil, err
	}

	next := models.CaseStatusUnderReview
	if targetStatus != nil {
		switch *targetStatus {
		case models.CaseStatusUnderReview, models.CaseStatusMunicipalInvestigation:
			next = *targetStatus
		default:
			return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "review can only park a case in a review state")
		}
	}

	before := *caseItem
	if checklist != nil {
		caseItem.Data.Merge(models.CaseData{Checklist: checklist})
	}
	caseItem.Status = next

	if err := commitTransition(tx, logger, before, caseItem, "case.reviewed", actor.Id, "Case review updated"); err != nil {
		return nil, err
	}
	return caseItem, nil
}

// Reject is the full administrative rejection. Only holders of the
// conservator seal can close a file this way; technical officers route
// defects through TechnicalQuery instead.
func Reject(tx *gorm.DB, logger *logrus.Logger, actor models.Actor, caseId int, reason string) (*models.Case, error) {
	if !actor.HasPermission("cases.seal") {
		return nil, utils.NewRegistryError(utils.ErrKindForbidden, "technical officers cannot issue final administrative rejections")
	}
	caseItem, err := loadCaseForUpdate(tx, caseId)
	if err != nil {
		return nil, err
	}
	if err := requireNotTerminal(caseItem); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "Administrative non-compliance"
	}
	before := *caseItem
	now := time.Now()
	caseItem.Status = models.CaseStatusRejected
	caseItem.Data.Merge(models.CaseData{
		RejectionReason: reason,
		RejectedBy:      actor.Id,
		RejectedAt:      &now,
	})

	if err := commitTransition(tx, logger, before, caseItem, "case.rejected", actor.Id, "Case rejected by conservator"); err != nil {
		return nil, err
	}
	return caseItem, nil
}
