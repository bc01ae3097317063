package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/terrafile/landregistry_backend/middlewares"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
)

type registerInput struct {
	FullName         string `json:"full_name" binding:"required"`
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required,min=8"`
	PhoneNumber      string `json:"phone_number"`
	NationalIdNumber string `json:"national_id_number"`
}

// registerHandler creates a citizen account. Official roles are never
// self-assigned; admins grant them afterwards.
func registerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input registerInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input.Email = strings.ToLower(strings.TrimSpace(input.Email))
		if !utils.IsValidEmail(input.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		if input.PhoneNumber != "" {
			if err := utils.ValidatePhoneNumber(input.PhoneNumber, "CM"); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if err := utils.ValidateUnique[models.User](c.Request.Context(), "email", input.Email, 0); err != nil {
			respondError(c, err)
			return
		}

		hashed, err := utils.HashPassword(input.Password)
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}
		user := &models.User{
			FullName:     input.FullName,
			Email:        input.Email,
			PasswordHash: string(hashed),
			PhoneNumber:  input.PhoneNumber,
			Role:         models.UserRoleBuyer,
			IsActive:     utils.NewTrue(),
		}
		if input.NationalIdNumber != "" {
			user.NationalIdNumber = &input.NationalIdNumber
		}

		err = runInTx(c, func(tx *gorm.DB) error {
			if err := models.CreateWithAudit(tx, user, "Account registered"); err != nil {
				return classifyDuplicate(err)
			}
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}

		user.PasswordHash = ""
		c.JSON(http.StatusCreated, user)
	}
}

type loginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input loginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		user, err := models.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(input.Email)))
		if err != nil {
			// Same response for unknown email and wrong password.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if user.IsActive != nil && !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account disabled"})
			return
		}
		if err := utils.ComparePassword(user.PasswordHash, input.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		roleName := ""
		if user.RoleObj != nil {
			roleName = user.RoleObj.Name
		}
		token, err := utils.JwtGenerate(user.ID, string(user.Role), roleName, user.EffectivePermissions())
		if err != nil {
			respondError(c, utils.WrapPersistence(err))
			return
		}

		user.PasswordHash = ""
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middlewares.ActorFromContext(c)
		user, err := models.GetUserById(c.Request.Context(), actor.Id)
		if err != nil {
			respondError(c, utils.NewRegistryError(utils.ErrKindNotFound, "user not found"))
			return
		}
		user.PasswordHash = ""
		c.JSON(http.StatusOK, gin.H{"user": user, "permissions": user.EffectivePermissions()})
	}
}
