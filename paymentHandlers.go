package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/middlewares"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"github.com/terrafile/landregistry_backend/workflow"
	"gorm.io/gorm"
)

type initiatePaymentInput struct {
	Purpose       models.PaymentPurpose `json:"purpose" binding:"required"`
	CaseId        *int                  `json:"case_id"`
	ParcelId      *int                  `json:"parcel_id"`
	DeclaredValue *decimal.Decimal      `json:"declared_value"`
}

// initiatePaymentHandler opens a pending transaction at the scheduled fee
// amount. The amount is computed server side; the client never sets it.
func initiatePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)

		var input initiatePaymentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		switch input.Purpose {
		case models.PaymentPurposeSearchFee, models.PaymentPurposeRegistrationFee, models.PaymentPurposeTransferTax:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment purpose"})
			return
		}
		if input.Purpose == models.PaymentPurposeSearchFee && input.ParcelId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parcel_id is required for a search fee"})
			return
		}
		if input.CaseId != nil {
			if err := utils.ValidateResourceId[models.Case](c.Request.Context(), *input.CaseId); err != nil {
				respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "case not found"))
				return
			}
		}

		amount := models.FeeFor(input.Purpose, input.DeclaredValue)
		if amount.IsZero() && input.Purpose == models.PaymentPurposeTransferTax {
			c.JSON(http.StatusBadRequest, gin.H{"error": "declared_value is required for transfer tax"})
			return
		}

		transaction := models.NewTransaction(actor.Id, input.Purpose, amount, input.CaseId, input.ParcelId)
		err := runInTx(c, func(tx *gorm.DB) error {
			if err := tx.Create(transaction).Error; err != nil {
				return utils.WrapPersistence(err)
			}
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transaction)
	}
}

type confirmPaymentInput struct {
	Reference string `json:"reference"`
}

// confirmPaymentHandler settles a pending transaction. Stands in for the
// payment provider callback; when the payment funds a case's filing fee, the
// case advances in the same transaction so a settled payment can never leave
// the case unpaid.
func confirmPaymentHandler() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)
		transactionId := c.Param("id")

		var input confirmPaymentInput
		_ = c.ShouldBindJSON(&input)

		var transaction *models.Transaction
		var updatedCase *models.Case
		err := runInTx(c, func(tx *gorm.DB) error {
			var row models.Transaction
			if err := tx.Where("id = ?", transactionId).First(&row).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return utils.NewRegistryError(utils.ErrKindNotFound, "transaction not found")
				}
				return utils.WrapPersistence(err)
			}
			if row.UserId != actor.Id && !actor.IsAdmin() {
				return utils.NewRegistryError(utils.ErrKindForbidden, "not your transaction")
			}
			if row.Status == models.PaymentStatusSuccess {
				return utils.NewRegistryError(utils.ErrKindConflict, "transaction already settled")
			}

			now := time.Now()
			row.Status = models.PaymentStatusSuccess
			row.Reference = input.Reference
			row.CompletedAt = &now
			if err := tx.Save(&row).Error; err != nil {
				return utils.WrapPersistence(err)
			}
			transaction = &row

			if row.CaseId != nil && row.Purpose != models.PaymentPurposeSearchFee {
				caseItem, err := workflow.PayFees(tx, logger, actor, *row.CaseId, row.ID)
				if err != nil {
					return err
				}
				updatedCase = caseItem
			}
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": transaction, "case": updatedCase})
	}
}

func listMyPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)
		transactions, err := models.ListTransactionsByUser(c.Request.Context(), actor.Id)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, transactions)
	}
}
