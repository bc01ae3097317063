package models

import (
	"context"
	"time"

	"github.com/terrafile/landregistry_backend/config"
)

// SystemConfig holds tunable registry settings (notice period days, office
// names) editable by administrators without redeploying.
type SystemConfig struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Key       string    `gorm:"size:100;uniqueIndex;not null" json:"key" binding:"required"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

func (s *SystemConfig) GetId() int { return s.ID }

// GetSystemConfigValue returns the config value, redis or db. Missing keys
// return the fallback without error.
func GetSystemConfigValue(ctx context.Context, key string, fallback string) (string, error) {
	var value string
	redisKey := "sysConfig:" + key
	exists, err := config.GetRedisObject(redisKey, &value)
	if err != nil {
		return "", err
	}
	if !exists {
		db := config.GetDB()
		var row SystemConfig
		if err := db.WithContext(ctx).Where("`key` = ?", key).First(&row).Error; err != nil {
			return fallback, nil
		}
		value = row.Value
		if err := config.SetRedisObject(redisKey, &value, 10*time.Minute); err != nil {
			return "", err
		}
	}
	if value == "" {
		return fallback, nil
	}
	return value, nil
}

func SetSystemConfigValue(ctx context.Context, key, value string) (*SystemConfig, error) {
	db := config.GetDB()
	var row SystemConfig
	err := db.WithContext(ctx).Where("`key` = ?", key).First(&row).Error
	if err != nil {
		row = SystemConfig{Key: key, Value: value}
		if err := db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, err
		}
	} else {
		row.Value = value
		if err := db.WithContext(ctx).Save(&row).Error; err != nil {
			return nil, err
		}
	}
	if err := config.RemoveRedisKey("sysConfig:" + key); err != nil {
		return nil, err
	}
	return &row, nil
}
