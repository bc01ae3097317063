package workflow

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// AcquireApprovalLock serializes approval per case across instances using
// MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the approval transaction.
func AcquireApprovalLock(tx *gorm.DB, caseId int) error {
	lockName := fmt.Sprintf("approval:%d", caseId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire approval lock for case_id=%d", caseId)
	}
	return nil
}

func ReleaseApprovalLock(tx *gorm.DB, caseId int) {
	lockName := fmt.Sprintf("approval:%d", caseId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// IsDuplicateKeyErr reports a MySQL unique index violation (error 1062).
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
