package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/terrafile/landregistry_backend/middlewares"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"github.com/terrafile/landregistry_backend/workflow"
	"gorm.io/gorm"
)

// searchFeeWindow is how long a paid search fee grants access to full parcel
// details. After the window expires the fee must be paid again.
const searchFeeWindow = 24 * time.Hour

type parcelSearchResult struct {
	Id           int                 `json:"id"`
	ParcelNumber string              `json:"parcel_number"`
	Locality     string              `json:"locality"`
	Status       models.ParcelStatus `json:"status"`
	OwnerName    string              `json:"owner_name"`
}

// searchRegistryHandler is the public registry search. Owner names are masked;
// full details require the paid search fee.
func searchRegistryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parcelNumber := c.Query("parcel_number")
		locality := c.Query("locality")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

		parcels, err := models.SearchParcels(c.Request.Context(), parcelNumber, locality, limit)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}

		results := make([]parcelSearchResult, 0, len(parcels))
		for _, p := range parcels {
			ownerName := ""
			if p.Owner != nil {
				ownerName = utils.MaskFullName(p.Owner.FullName)
			}
			results = append(results, parcelSearchResult{
				Id:           p.ID,
				ParcelNumber: p.ParcelNumber,
				Locality:     p.Locality,
				Status:       p.Status,
				OwnerName:    ownerName,
			})
		}
		c.JSON(http.StatusOK, results)
	}
}

// parcelDetailsHandler returns the full parcel record including title history.
// Access is the owner's, an official's, or anyone holding a valid search fee
// payment for this parcel.
func parcelDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parcel id"})
			return
		}
		actor, _ := middlewares.ActorFromContext(c)

		parcel, err := models.GetParcelById(c.Request.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "parcel not found"))
				return
			}
			respondError(c, utils.WrapPersistence(err))
			return
		}

		isOwner := parcel.OwnerId != nil && *parcel.OwnerId == actor.Id
		isOfficial := actor.HasRole(models.UserRoleConservator, models.UserRoleCadastre, models.UserRoleSurveyor)
		if !isOwner && !isOfficial {
			paid, err := models.HasPaidSearchFee(c.Request.Context(), actor.Id, parcel.ID, searchFeeWindow)
			if err != nil {
				respondError(c, utils.WrapPersistence(err))
				return
			}
			if !paid {
				c.JSON(http.StatusPaymentRequired, gin.H{
					"error":    "search fee required",
					"purpose":  models.PaymentPurposeSearchFee,
					"amount":   models.FeeFor(models.PaymentPurposeSearchFee, nil),
					"currency": "XAF",
				})
				return
			}
		}

		activeDeed, err := models.GetActiveDeedByParcelId(c.Request.Context(), parcel.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"parcel":      parcel,
			"active_deed": activeDeed,
		})
	}
}

// verifyDeedHandler lets anyone check a deed number's standing and the
// integrity of its digital seal without exposing the holder's identity.
func verifyDeedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deedNumber := c.Param("deedNumber")
		if deedNumber == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "deed number is required"})
			return
		}

		deed, err := models.GetDeedByNumber(c.Request.Context(), deedNumber)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusOK, gin.H{"deed_number": deedNumber, "exists": false})
				return
			}
			respondError(c, utils.WrapPersistence(err))
			return
		}

		sealValid := false
		parcel, err := models.GetParcelById(c.Request.Context(), deed.ParcelId)
		if err == nil {
			expected := models.ComputeDigitalSeal(deed.DeedNumber, parcel.ParcelNumber, deed.HolderId, deed.IssuedAt)
			sealValid = expected == deed.DigitalSealHash
		}

		c.JSON(http.StatusOK, gin.H{
			"deed_number":   deed.DeedNumber,
			"exists":        true,
			"is_active":     deed.IsActive != nil && *deed.IsActive,
			"issued_at":     deed.IssuedAt,
			"volume_number": deed.VolumeNumber,
			"folio_number":  deed.FolioNumber,
			"seal_valid":    sealValid,
		})
	}
}

type publicNotice struct {
	CaseId               int             `json:"case_id"`
	CaseType             models.CaseType `json:"case_type"`
	ParcelNumber         string          `json:"parcel_number"`
	Locality             string          `json:"locality"`
	ApplicantName        string          `json:"applicant_name"`
	NoticeStartDate      *time.Time      `json:"notice_start_date"`
	NoticeExpirationDate *time.Time      `json:"notice_expiration_date"`
}

func toPublicNotice(caseItem *models.Case) publicNotice {
	notice := publicNotice{
		CaseId:               caseItem.ID,
		CaseType:             caseItem.Type,
		ParcelNumber:         caseItem.Data.ParcelNumber,
		Locality:             caseItem.Data.Locality,
		NoticeStartDate:      caseItem.Data.NoticeStartDate,
		NoticeExpirationDate: caseItem.Data.NoticeExpirationDate,
	}
	if notice.ParcelNumber == "" && caseItem.RelatedParcel != nil {
		notice.ParcelNumber = caseItem.RelatedParcel.ParcelNumber
		notice.Locality = caseItem.RelatedParcel.Locality
	}
	if caseItem.Initiator != nil {
		notice.ApplicantName = utils.MaskFullName(caseItem.Initiator.FullName)
	}
	return notice
}

// listNoticesHandler is the public opposition notice board: every case
// currently in its opposition period, with the applicant's name masked.
func listNoticesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cases, err := models.ListCasesByStatuses(c.Request.Context(), []models.CaseStatus{models.CaseStatusOppositionPeriod})
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		notices := make([]publicNotice, 0, len(cases))
		for _, caseItem := range cases {
			notices = append(notices, toPublicNotice(caseItem))
		}
		c.JSON(http.StatusOK, notices)
	}
}

func getPublicNoticeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
			return
		}
		caseItem, err := models.GetCaseById(c.Request.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "notice not found"))
				return
			}
			respondError(c, utils.WrapPersistence(err))
			return
		}
		// Only cases in their opposition period are public.
		if caseItem.Status != models.CaseStatusOppositionPeriod {
			respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "notice not found"))
			return
		}
		c.JSON(http.StatusOK, toPublicNotice(caseItem))
	}
}

// createParcelHandler registers a parcel directly, outside the case workflow.
// Reserved for registry staff backfilling the paper ledger.
func createParcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var parcel models.Parcel
		if err := c.ShouldBindJSON(&parcel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		parcel.ID = 0
		if parcel.Status == "" {
			parcel.Status = models.ParcelStatusRegistered
		}

		var checker models.BoundaryChecker = models.BoundingBoxChecker{}
		err := runInTx(c, func(tx *gorm.DB) error {
			conflict, err := checker.Overlaps(c.Request.Context(), tx, &parcel)
			if err != nil {
				return utils.WrapPersistence(err)
			}
			if conflict != "" {
				return &utils.RegistryError{Kind: utils.ErrKindConflict, Message: "boundary overlaps registered parcel " + conflict}
			}
			if err := models.CreateWithAudit(tx, &parcel, "Parcel registered manually"); err != nil {
				return classifyDuplicate(err)
			}
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, parcel)
	}
}

func classifyDuplicate(err error) error {
	if workflow.IsDuplicateKeyErr(err) {
		return &utils.RegistryError{Kind: utils.ErrKindConflict, Message: "parcel number already registered", Err: err}
	}
	return utils.WrapPersistence(err)
}
