package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []*models.User
		q := config.GetDB().WithContext(c.Request.Context()).Preload("RoleObj")
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}
		if err := q.Order("id ASC").Limit(500).Find(&users).Error; err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		for _, u := range users {
			u.PasswordHash = ""
		}
		c.JSON(http.StatusOK, users)
	}
}

type assignRoleInput struct {
	Role   models.UserRole `json:"role"`
	RoleId *int            `json:"role_id"`
}

// assignRoleHandler grants or changes a user's role. Both the legacy role tag
// and the role object can be set; either may be omitted.
func assignRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, err := strconv.Atoi(c.Param("id"))
		if err != nil || userId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var input assignRoleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.RoleId != nil {
			if err := utils.ValidateResourceId[models.Role](c.Request.Context(), *input.RoleId); err != nil {
				respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "role not found"))
				return
			}
		}

		var user models.User
		txErr := runInTx(c, func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", userId).First(&user).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return utils.NewRegistryError(utils.ErrKindNotFound, "user not found")
				}
				return utils.WrapPersistence(err)
			}
			before := user
			if input.Role != "" {
				user.Role = input.Role
			}
			if input.RoleId != nil {
				user.RoleId = input.RoleId
			}
			if err := models.SaveWithAudit(tx, &before, &user, "Role assignment changed"); err != nil {
				return utils.WrapPersistence(err)
			}
			return nil
		})
		if txErr != nil {
			respondError(c, txErr)
			return
		}
		user.PasswordHash = ""
		c.JSON(http.StatusOK, user)
	}
}

func listRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var roles []*models.Role
		if err := config.GetDB().WithContext(c.Request.Context()).
			Preload("Permissions").Order("id ASC").Find(&roles).Error; err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, roles)
	}
}

func createRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var role models.Role
		if err := c.ShouldBindJSON(&role); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		role.ID = 0
		err := runInTx(c, func(tx *gorm.DB) error {
			if err := models.CreateWithAudit(tx, &role, "Role created"); err != nil {
				return classifyDuplicate(err)
			}
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, role)
	}
}

type setPermissionsInput struct {
	PermissionIds []int `json:"permission_ids" binding:"required"`
}

func setRolePermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleId, err := strconv.Atoi(c.Param("id"))
		if err != nil || roleId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role id"})
			return
		}
		var input setPermissionsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var role models.Role
		txErr := runInTx(c, func(tx *gorm.DB) error {
			if err := tx.Preload("Permissions").Where("id = ?", roleId).First(&role).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return utils.NewRegistryError(utils.ErrKindNotFound, "role not found")
				}
				return utils.WrapPersistence(err)
			}
			var permissions []*models.Permission
			if len(input.PermissionIds) > 0 {
				if err := tx.Where("id IN ?", input.PermissionIds).Find(&permissions).Error; err != nil {
					return utils.WrapPersistence(err)
				}
				if len(permissions) != len(input.PermissionIds) {
					return utils.NewRegistryError(utils.ErrKindNotFound, "one or more permissions not found")
				}
			}
			before := role
			if err := tx.Model(&role).Association("Permissions").Replace(permissions); err != nil {
				return utils.WrapPersistence(err)
			}
			role.Permissions = permissions
			if err := models.SaveWithAudit(tx, &before, &role, "Role permissions replaced"); err != nil {
				return utils.WrapPersistence(err)
			}
			return nil
		})
		if txErr != nil {
			respondError(c, txErr)
			return
		}
		// Cached permission lists are now stale.
		_ = models.InvalidateRolePermissionCache(roleId)
		c.JSON(http.StatusOK, role)
	}
}

func listPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var permissions []*models.Permission
		if err := config.GetDB().WithContext(c.Request.Context()).
			Order("name ASC").Find(&permissions).Error; err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, permissions)
	}
}

func auditLogFilters(c *gin.Context) (*int, *string, *int, int) {
	var referenceId, userId *int
	var referenceType *string
	if v, err := strconv.Atoi(c.Query("reference_id")); err == nil && v > 0 {
		referenceId = &v
	}
	if v := c.Query("reference_type"); v != "" {
		referenceType = &v
	}
	if v, err := strconv.Atoi(c.Query("user_id")); err == nil && v > 0 {
		userId = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	return referenceId, referenceType, userId, limit
}

func listAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceId, referenceType, userId, limit := auditLogFilters(c)
		logs, err := models.GetAuditLogs(c.Request.Context(), referenceId, referenceType, userId, limit)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

// exportAuditLogsHandler streams the filtered audit trail as an xlsx workbook.
func exportAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceId, referenceType, userId, limit := auditLogFilters(c)
		logs, err := models.GetAuditLogs(c.Request.Context(), referenceId, referenceType, userId, limit)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}

		f := excelize.NewFile()
		defer f.Close()
		sheet := "Audit"
		f.SetSheetName(f.GetSheetName(0), sheet)

		headers := []string{"ID", "Action", "Reference Type", "Reference ID", "User ID", "User Name", "Correlation ID", "Description", "Created At"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
		for row, logItem := range logs {
			userIdValue := ""
			if logItem.UserId != nil {
				userIdValue = strconv.Itoa(*logItem.UserId)
			}
			values := []interface{}{
				logItem.ID,
				logItem.ActionType,
				logItem.ReferenceType,
				logItem.ReferenceId,
				userIdValue,
				logItem.UserName,
				logItem.CorrelationId,
				logItem.Description,
				logItem.CreatedAt.Format(time.RFC3339),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}

		filename := fmt.Sprintf("audit-logs-%s.xlsx", time.Now().Format("20060102-150405"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			respondError(c, utils.WrapPersistence(err))
		}
	}
}

func getSystemConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		value, err := models.GetSystemConfigValue(c.Request.Context(), key, "")
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
	}
}

type setConfigInput struct {
	Value string `json:"value" binding:"required"`
}

func setSystemConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		var input setConfigInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
			return
		}
		entry, err := models.SetSystemConfigValue(c.Request.Context(), key, input.Value)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

type outboxReplayInput struct {
	Ids []int `json:"ids"`
}

// outboxReplayHandler re-queues DEAD or FAILED outbox rows. With no ids, every
// dead row is re-queued.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input outboxReplayInput
		_ = c.ShouldBindJSON(&input)

		var affected int64
		err := runInTx(c, func(tx *gorm.DB) error {
			q := tx.Model(&models.CaseEventRecord{}).
				Where("publish_status IN ?", []string{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed})
			if len(input.Ids) > 0 {
				q = q.Where("id IN ?", input.Ids)
			}
			res := q.Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusPending,
				"publish_attempts":   0,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			})
			if res.Error != nil {
				return utils.WrapPersistence(res.Error)
			}
			affected = res.RowsAffected
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": affected})
	}
}
