package models

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/terrafile/landregistry_backend/config"
)

type UserRole string

const (
	UserRoleBuyer       UserRole = "buyer"
	UserRoleOwner       UserRole = "owner"
	UserRoleClerk       UserRole = "clerk"
	UserRoleAgent       UserRole = "agent"
	UserRoleConservator UserRole = "conservator"
	UserRoleCadastre    UserRole = "cadastre" // technical authority (survey/mapping)
	UserRoleNotary      UserRole = "notary"
	UserRoleSurveyor    UserRole = "surveyor" // field professional
	UserRoleGovernor    UserRole = "governor"
	UserRoleMayor       UserRole = "mayor"
	UserRoleAdmin       UserRole = "admin"
)

// SuperAdminRoleName grants the same unconditional bypass as the legacy admin
// role tag. Kept for installations that migrated to role objects.
const SuperAdminRoleName = "Super Admin"

type User struct {
	ID               int       `gorm:"primary_key" json:"id"`
	FullName         string    `gorm:"size:255;not null" json:"full_name" binding:"required"`
	Email            string    `gorm:"size:255;uniqueIndex;not null" json:"email" binding:"required"`
	PasswordHash     string    `gorm:"size:255;not null" json:"password_hash,omitempty"`
	PhoneNumber      string    `gorm:"size:50" json:"phone_number"`
	Role             UserRole  `gorm:"size:50;not null;default:buyer" json:"role"` // LEGACY: single-role tag kept for compatibility
	RoleId           *int      `gorm:"index" json:"role_id"`
	RoleObj          *Role     `gorm:"foreignKey:RoleId" json:"role_obj,omitempty"`
	NationalIdNumber *string   `gorm:"size:100;uniqueIndex" json:"national_id_number"`
	IsActive         *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }

func (u *User) GetId() int { return u.ID }

type Role struct {
	ID          int           `gorm:"primary_key" json:"id"`
	Name        string        `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Description string        `gorm:"size:255" json:"description"`
	Permissions []*Permission `gorm:"many2many:role_permissions" json:"permissions"`
}

func (Role) TableName() string { return "roles" }

func (r *Role) GetId() int { return r.ID }

type Permission struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"` // e.g. "cases.seal", "registry.create_parcel"
	Description string `gorm:"size:255" json:"description"`
}

func (Permission) TableName() string { return "permissions" }

func (p *Permission) GetId() int { return p.ID }

// EffectivePermissions resolves the user's named permissions: the role object's
// permission list if present, else empty. The admin bypass is handled by Actor,
// not here, so the raw list stays faithful to what was granted.
func (u *User) EffectivePermissions() []string {
	if u.RoleObj == nil {
		return nil
	}
	perms := make([]string, 0, len(u.RoleObj.Permissions))
	for _, p := range u.RoleObj.Permissions {
		perms = append(perms, p.Name)
	}
	return perms
}

// Actor is the verified capability set of the user performing an operation.
// Built from JWT claims; the workflow layer checks it before touching state.
type Actor struct {
	Id          int
	Role        UserRole
	RoleName    string
	Permissions []string
}

func (a Actor) IsAdmin() bool {
	return a.Role == UserRoleAdmin || a.RoleName == SuperAdminRoleName
}

// HasRole checks the legacy role tag with the administrative bypass.
func (a Actor) HasRole(roles ...UserRole) bool {
	if a.IsAdmin() {
		return true
	}
	return slices.Contains(roles, a.Role)
}

// HasPermission checks a named permission with the administrative bypass.
func (a Actor) HasPermission(permission string) bool {
	if a.IsAdmin() {
		return true
	}
	return slices.Contains(a.Permissions, permission)
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Preload("RoleObj").Preload("RoleObj.Permissions").
		Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Preload("RoleObj").Preload("RoleObj.Permissions").
		Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetRolePermissionNames returns the permission names of a role, redis or db.
func GetRolePermissionNames(ctx context.Context, roleId int) ([]string, error) {
	if roleId == 0 {
		return nil, errors.New("role id is required")
	}

	var names []string
	redisKey := "rolePerms:" + strconv.Itoa(roleId)
	exists, err := config.GetRedisObject(redisKey, &names)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		var role Role
		if err := db.WithContext(ctx).Preload("Permissions").Where("id = ?", roleId).First(&role).Error; err != nil {
			return nil, err
		}
		for _, p := range role.Permissions {
			names = append(names, p.Name)
		}
		if err := config.SetRedisObject(redisKey, &names, 10*time.Minute); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// InvalidateRolePermissionCache drops the cached permission list after role edits.
func InvalidateRolePermissionCache(roleId int) error {
	return config.RemoveRedisKey("rolePerms:" + strconv.Itoa(roleId))
}
