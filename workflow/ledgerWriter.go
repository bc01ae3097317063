package workflow

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
)

// defaultDeedDepartment is the paper-registry department stamped on a deed
// when the application carries no locality.
const defaultDeedDepartment = "CENTRE"

// LedgerPlan is the set of registry writes an approval entails. Built as pure
// data first so the branch logic is testable without a database, then applied
// inside the approval transaction.
type LedgerPlan struct {
	// NewParcel is created for new registrations and subdivision children.
	NewParcel *models.Parcel
	// DeactivateDeedId marks the superseded title on a transfer.
	DeactivateDeedId int
	// NewDeed is the title to issue. ParcelId 0 means "the NewParcel".
	NewDeed *models.Deed
	// ArchiveParentParcelId retires the parent parcel after subdivision when
	// the configured policy says so.
	ArchiveParentParcelId int
}

func (p *LedgerPlan) IsEmpty() bool {
	return p.NewParcel == nil && p.NewDeed == nil && p.DeactivateDeedId == 0 && p.ArchiveParentParcelId == 0
}

// BuildLedgerPlan computes the registry writes for an approved case.
//
// parcel is the case's related parcel (nil when none is linked) and activeDeed
// its current active title (nil when none); both must be loaded under the
// approval transaction's locks by the caller.
func BuildLedgerPlan(caseItem *models.Case, parcel *models.Parcel, activeDeed *models.Deed, approverId int, parentPolicy config.SubdivisionParentPolicyValue, now time.Time) (*LedgerPlan, error) {
	plan := &LedgerPlan{}

	switch caseItem.Type {
	case models.CaseTypeNewRegistration:
		if caseItem.Data.ParcelNumber == "" {
			return nil, utils.NewRegistryError(utils.ErrKindInvalidState, "application has no parcel number")
		}
		plan.NewParcel = &models.Parcel{
			ParcelNumber: caseItem.Data.ParcelNumber,
			Locality:     caseItem.Data.Locality,
			Area:         caseItem.Data.Area,
			OwnerId:      &caseItem.InitiatorId,
			Status:       models.ParcelStatusRegistered,
		}
		department := caseItem.Data.Locality
		if department == "" {
			department = defaultDeedDepartment
		}
		deedNumber := models.GenerateDeedNumber()
		plan.NewDeed = &models.Deed{
			DeedNumber:      deedNumber,
			VolumeNumber:    models.GenerateVolumeNumber(),
			FolioNumber:     models.GenerateFolioNumber(),
			Department:      department,
			HolderId:        caseItem.InitiatorId,
			ConservatorId:   approverId,
			IsActive:        utils.NewTrue(),
			DigitalSealHash: models.ComputeDigitalSeal(deedNumber, caseItem.Data.ParcelNumber, caseItem.InitiatorId, now),
			IssuedAt:        now,
		}

	case models.CaseTypeTransfer:
		if parcel == nil {
			return nil, utils.NewRegistryError(utils.ErrKindNotFound, "transfer case has no related parcel")
		}
		if activeDeed == nil {
			return nil, utils.NewRegistryError(utils.ErrKindConflict, "parcel has no active deed to supersede")
		}
		plan.DeactivateDeedId = activeDeed.ID
		deedNumber := models.SupersededDeedNumber(activeDeed.DeedNumber)
		plan.NewDeed = &models.Deed{
			DeedNumber:      deedNumber,
			VolumeNumber:    activeDeed.VolumeNumber,
			FolioNumber:     activeDeed.FolioNumber,
			Department:      activeDeed.Department,
			ParcelId:        parcel.ID,
			HolderId:        caseItem.InitiatorId,
			ConservatorId:   approverId,
			IsActive:        utils.NewTrue(),
			DigitalSealHash: models.ComputeDigitalSeal(deedNumber, parcel.ParcelNumber, caseItem.InitiatorId, now),
			IssuedAt:        now,
		}

	case models.CaseTypeSubdivision:
		if parcel == nil {
			return nil, utils.NewRegistryError(utils.ErrKindNotFound, "subdivision case has no related parcel")
		}
		childNumber := parcel.ParcelNumber + "-A"
		childArea := caseItem.Data.Area
		if childArea == nil && parcel.Area != nil {
			half := parcel.Area.Div(decimal.NewFromInt(2))
			childArea = &half
		}
		plan.NewParcel = &models.Parcel{
			ParcelNumber: childNumber,
			Locality:     parcel.Locality,
			Area:         childArea,
			OwnerId:      &caseItem.InitiatorId,
			Status:       models.ParcelStatusRegistered,
		}
		deedNumber := models.GenerateDeedNumber()
		plan.NewDeed = &models.Deed{
			DeedNumber:      deedNumber,
			VolumeNumber:    models.GenerateVolumeNumber(),
			FolioNumber:     models.GenerateFolioNumber(),
			Department:      parcel.Locality,
			HolderId:        caseItem.InitiatorId,
			ConservatorId:   approverId,
			IsActive:        utils.NewTrue(),
			DigitalSealHash: models.ComputeDigitalSeal(deedNumber, childNumber, caseItem.InitiatorId, now),
			IssuedAt:        now,
		}
		if parentPolicy == config.SubdivisionParentArchive {
			plan.ArchiveParentParcelId = parcel.ID
		}

	case models.CaseTypeDispute:
		// Dispute resolution changes no titles; the case record is the outcome.
	}

	return plan, nil
}

// ApplyLedgerPlan executes the plan inside the approval transaction and
// returns the id of the parcel the case should link to (0 when unchanged).
// Deactivation happens before issuance so the one-active-deed-per-parcel
// invariant holds at every point inside the transaction.
func ApplyLedgerPlan(tx *gorm.DB, logger *logrus.Logger, plan *LedgerPlan, caseId int) (int, error) {
	linkedParcelId := 0

	if plan.NewParcel != nil {
		if err := models.CreateWithAudit(tx, plan.NewParcel, "Parcel registered on approval"); err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "CreateParcel", caseId, err)
			return 0, classifyLedgerErr(err)
		}
		linkedParcelId = plan.NewParcel.ID
	}

	if plan.DeactivateDeedId != 0 {
		var oldDeed models.Deed
		if err := tx.Where("id = ?", plan.DeactivateDeedId).First(&oldDeed).Error; err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "LoadOldDeed", plan.DeactivateDeedId, err)
			return 0, utils.WrapPersistence(err)
		}
		before := oldDeed
		oldDeed.IsActive = utils.NewFalse()
		if err := models.SaveWithAudit(tx, &before, &oldDeed, "Deed superseded by transfer"); err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "DeactivateDeed", plan.DeactivateDeedId, err)
			return 0, utils.WrapPersistence(err)
		}
	}

	if plan.NewDeed != nil {
		if plan.NewDeed.ParcelId == 0 {
			plan.NewDeed.ParcelId = plan.NewParcel.ID
		}
		plan.NewDeed.CaseId = &caseId
		if err := models.CreateWithAudit(tx, plan.NewDeed, "Deed issued on approval"); err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "CreateDeed", caseId, err)
			return 0, classifyLedgerErr(err)
		}
	}

	if plan.ArchiveParentParcelId != 0 {
		var parent models.Parcel
		if err := tx.Where("id = ?", plan.ArchiveParentParcelId).First(&parent).Error; err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "LoadParentParcel", plan.ArchiveParentParcelId, err)
			return 0, utils.WrapPersistence(err)
		}
		before := parent
		parent.Status = models.ParcelStatusArchived
		if err := models.SaveWithAudit(tx, &before, &parent, "Parent parcel archived after subdivision"); err != nil {
			config.LogError(logger, "ledgerWriter.go", "ApplyLedgerPlan", "ArchiveParentParcel", plan.ArchiveParentParcelId, err)
			return 0, utils.WrapPersistence(err)
		}
	}

	return linkedParcelId, nil
}

// classifyLedgerErr turns a duplicate key violation (parcel number or deed
// number already taken) into a retryable conflict.
func classifyLedgerErr(err error) error {
	if IsDuplicateKeyErr(err) {
		return &utils.RegistryError{Kind: utils.ErrKindConflict, Message: "registry number already in use", Err: err}
	}
	return utils.WrapPersistence(err)
}
