package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"gorm.io/gorm"
)

// Seeds the permission catalog, the standard authority roles, and one admin
// account. Safe to run repeatedly; existing rows are left alone.

var permissionCatalog = []models.Permission{
	{Name: "cases.seal", Description: "Legally approve or reject a case (conservator seal)"},
	{Name: "cases.validate_technical", Description: "Certify the technical plan (cadastre)"},
	{Name: "cases.schedule_visit", Description: "Schedule a commission field visit"},
	{Name: "cases.start_notice", Description: "Open the public opposition period"},
	{Name: "cases.review", Description: "Review case files and manage checklists"},
	{Name: "registry.create_parcel", Description: "Register a parcel outside the case workflow"},
}

var roleCatalog = map[string][]string{
	"Conservator": {"cases.seal", "cases.review", "cases.start_notice"},
	"Cadastre":    {"cases.validate_technical", "cases.review"},
	"Surveyor":    {"cases.schedule_visit"},
	"Super Admin": {},
}

func main() {
	email := flag.String("email", "admin@registry.local", "Admin account email")
	password := flag.String("password", "", "Admin account password (required)")
	fullName := flag.String("name", "Registry Administrator", "Admin full name")
	flag.Parse()

	if strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	// Audit rows written by the seeder carry the seeder's name, not a user id.
	ctx = utils.SetUserNameInContext(ctx, "SeedAdmin")

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permissionsByName := map[string]*models.Permission{}
		for i := range permissionCatalog {
			p := permissionCatalog[i]
			var existing models.Permission
			err := tx.Where("name = ?", p.Name).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
				existing = p
				fmt.Printf("created permission %s\n", p.Name)
			} else if err != nil {
				return err
			}
			permissionsByName[existing.Name] = &existing
		}

		var adminRoleId int
		for name, permissionNames := range roleCatalog {
			var role models.Role
			err := tx.Preload("Permissions").Where("name = ?", name).First(&role).Error
			if err == gorm.ErrRecordNotFound {
				role = models.Role{Name: name}
				for _, pn := range permissionNames {
					role.Permissions = append(role.Permissions, permissionsByName[pn])
				}
				if err := tx.Create(&role).Error; err != nil {
					return err
				}
				fmt.Printf("created role %s\n", name)
			} else if err != nil {
				return err
			}
			if name == models.SuperAdminRoleName {
				adminRoleId = role.ID
			}
		}

		var existing models.User
		err := tx.Where("email = ?", strings.ToLower(*email)).First(&existing).Error
		if err == nil {
			fmt.Printf("admin %s already exists (id=%d)\n", *email, existing.ID)
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		hashed, err := utils.HashPassword(*password)
		if err != nil {
			return err
		}
		admin := models.User{
			FullName:     *fullName,
			Email:        strings.ToLower(*email),
			PasswordHash: string(hashed),
			Role:         models.UserRoleAdmin,
			IsActive:     utils.NewTrue(),
		}
		if adminRoleId != 0 {
			admin.RoleId = &adminRoleId
		}
		if err := models.CreateWithAudit(tx, &admin, "Admin account seeded"); err != nil {
			return err
		}
		fmt.Printf("created admin %s (id=%d)\n", admin.Email, admin.ID)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}
