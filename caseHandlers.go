package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/middlewares"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"github.com/terrafile/landregistry_backend/workflow"
	"gorm.io/gorm"
)

func caseIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return 0, false
	}
	return id, true
}

// runInTx opens a transaction carrying the request context so the audit and
// outbox layers can read the actor and correlation id from it.
func runInTx(c *gin.Context, fn func(tx *gorm.DB) error) error {
	return config.GetDB().WithContext(c.Request.Context()).Transaction(fn)
}

func createCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)

		var input models.NewCase
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := input.Validate(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		caseItem := &models.Case{
			Type:            input.Type,
			Status:          models.CaseStatusPendingPayment,
			InitiatorId:     actor.Id,
			RelatedParcelId: input.RelatedParcelId,
			Data:            input.Data,
		}
		err := runInTx(c, func(tx *gorm.DB) error {
			if err := models.CreateWithAudit(tx, caseItem, "Case filed"); err != nil {
				return utils.WrapPersistence(err)
			}
			if caseItem.DisputesParcel() {
				if err := models.FlagParcelDisputed(tx, *caseItem.RelatedParcelId); err != nil {
					return utils.WrapPersistence(err)
				}
			}
			return models.PublishCaseEvent(c.Request.Context(), tx, caseItem, "case.created", "", actor.Id, nil)
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, caseItem)
	}
}

func listCasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)
		history := c.Query("history") == "true"

		statuses, err := workflow.JurisdictionStatuses(actor, history)
		if err != nil {
			respondError(c, err)
			return
		}
		if status := c.Query("status"); status != "" {
			statuses = filterStatuses(statuses, models.CaseStatus(status))
			if statuses == nil {
				c.JSON(http.StatusOK, []*models.Case{})
				return
			}
		}

		cases, err := models.ListCasesByStatuses(c.Request.Context(), statuses)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, cases)
	}
}

// filterStatuses intersects the jurisdiction with a requested status. A nil
// jurisdiction means "all", so the request narrows it directly.
func filterStatuses(jurisdiction []models.CaseStatus, requested models.CaseStatus) []models.CaseStatus {
	if jurisdiction == nil {
		return []models.CaseStatus{requested}
	}
	for _, s := range jurisdiction {
		if s == requested {
			return []models.CaseStatus{requested}
		}
	}
	return nil
}

func listMyCasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)
		cases, err := models.ListCasesByInitiator(c.Request.Context(), actor.Id)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, cases)
	}
}

func getCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := caseIdParam(c)
		if !ok {
			return
		}
		actor, _ := middlewares.ActorFromContext(c)

		caseItem, err := models.GetCaseById(c.Request.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "case not found"))
				return
			}
			respondError(c, utils.WrapPersistence(err))
			return
		}

		if !canViewCase(actor, caseItem) {
			respondError(c, utils.NewRegistryError(utils.ErrKindForbidden, "case is outside your jurisdiction"))
			return
		}
		c.JSON(http.StatusOK, caseItem)
	}
}

// canViewCase: the initiator always sees their own file; officials see cases
// within their jurisdiction plus the shared history.
func canViewCase(actor models.Actor, caseItem *models.Case) bool {
	if actor.IsAdmin() || caseItem.InitiatorId == actor.Id {
		return true
	}
	statuses, err := workflow.JurisdictionStatuses(actor, caseItem.Status.IsTerminal())
	if err != nil {
		return false
	}
	if statuses == nil {
		return true
	}
	for _, s := range statuses {
		if s == caseItem.Status {
			return true
		}
	}
	return false
}

type transitionFn func(tx *gorm.DB, actor models.Actor, caseId int) (*models.Case, error)

// runTransition is the shared shape of every status-change endpoint: one
// transaction, one workflow call, kind-mapped errors.
func runTransition(c *gin.Context, fn transitionFn) {
	id, ok := caseIdParam(c)
	if !ok {
		return
	}
	actor, _ := middlewares.ActorFromContext(c)

	var result *models.Case
	err := runInTx(c, func(tx *gorm.DB) error {
		var err error
		result, err = fn(tx, actor, id)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func payFeesHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			PaymentReference string `json:"payment_reference"`
		}
		_ = c.ShouldBindJSON(&body)
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.PayFees(tx, logger, actor, id, body.PaymentReference)
		})
	}
}

func authorizeCommissionHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			Checklist map[string]bool `json:"checklist"`
		}
		_ = c.ShouldBindJSON(&body)
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.AuthorizeCommission(tx, logger, actor, id, body.Checklist)
		})
	}
}

func scheduleVisitHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			VisitDate time.Time `json:"visit_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "visit_date is required (RFC3339)"})
			return
		}
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.ScheduleVisit(tx, logger, actor, id, body.VisitDate)
		})
	}
}

func uploadReportHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			ReportURL string `json:"report_url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "report_url is required"})
			return
		}
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.UploadReport(tx, logger, actor, id, body.ReportURL)
		})
	}
}

func validateTechnicalHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.ValidateTechnicalPlan(tx, logger, actor, id)
		})
	}
}

func technicalQueryHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.TechnicalQuery(tx, logger, actor, id, body.Reason)
		})
	}
}

func startNoticeHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.StartNotice(tx, logger, actor, id)
		})
	}
}

func requestGovernorHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.RequestGovernorApproval(tx, logger, actor, id)
		})
	}
}

func reviewCaseHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			Checklist map[string]bool    `json:"checklist"`
			Status    *models.CaseStatus `json:"status"`
		}
		_ = c.ShouldBindJSON(&body)
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.Review(tx, logger, actor, id, body.Checklist, body.Status)
		})
	}
}

func approveCaseHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			Checklist map[string]bool `json:"checklist"`
		}
		_ = c.ShouldBindJSON(&body)

		id, ok := caseIdParam(c)
		if !ok {
			return
		}

		// Best-effort distributed lock in front of the DB advisory lock so
		// concurrent approvals fail fast instead of queuing on GET_LOCK.
		if locker := config.GetRedisLock(); locker != nil {
			lock, err := locker.Obtain(c.Request.Context(), "approve:"+strconv.Itoa(id), 10*time.Second, nil)
			if err == nil {
				defer lock.Release(c.Request.Context())
			}
		}

		actor, _ := middlewares.ActorFromContext(c)
		var result *models.Case
		err := runInTx(c, func(tx *gorm.DB) error {
			var err error
			result, err = workflow.ApproveCase(tx, logger, actor, id, body.Checklist)
			return err
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func rejectCaseHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)
		runTransition(c, func(tx *gorm.DB, actor models.Actor, id int) (*models.Case, error) {
			return workflow.Reject(tx, logger, actor, id, body.Reason)
		})
	}
}
