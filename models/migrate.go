package models

import (
	"log"

	"github.com/terrafile/landregistry_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Role{}, &Permission{},
		&Case{}, &Parcel{}, &Deed{},
		&Transaction{},
		&AuditLog{}, &CaseEventRecord{},
		&SystemConfig{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
