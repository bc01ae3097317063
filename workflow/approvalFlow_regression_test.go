package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
	"github.com/terrafile/landregistry_backend/workflow"
	"gorm.io/gorm"
)

// End-to-end approval against a real MySQL: the ledger writes, the duplicate
// approval guard, and both separation-of-duties gates.

// setupIntegrationDB boots a throwaway MySQL container and connects the
// global database handle to it.
func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "landregistry_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	return config.GetDB()
}

func TestApprovalIssuesDeedAndBlocksDuplicates(t *testing.T) {
	db := setupIntegrationDB(t)
	logger := config.GetLogger()

	applicant := models.User{FullName: "Awa Ndiaye", Email: "awa@test.local", PasswordHash: "x", Role: models.UserRoleOwner}
	cadastre := models.User{FullName: "Cheikh Sow", Email: "cheikh@test.local", PasswordHash: "x", Role: models.UserRoleCadastre}
	conservator := models.User{FullName: "Fatou Ba", Email: "fatou@test.local", PasswordHash: "x", Role: models.UserRoleConservator}
	for _, u := range []*models.User{&applicant, &cadastre, &conservator} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	sealActor := models.Actor{Id: conservator.ID, Role: models.UserRoleConservator, Permissions: []string{"cases.seal"}}
	ctx := utils.SetUserIdInContext(context.Background(), conservator.ID)
	ctx = utils.SetUserNameInContext(ctx, conservator.FullName)

	certified := time.Now().Add(-48 * time.Hour)
	caseItem := models.Case{
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusGovernorApproval,
		InitiatorId: applicant.ID,
		Data: models.CaseData{
			ParcelNumber:        "DK-2026-7001",
			Locality:            "Ngor",
			CadastreValidatedAt: &certified,
			CadastreOfficerId:   cadastre.ID,
		},
	}
	if err := db.Create(&caseItem).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}

	var approved *models.Case
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		approved, err = workflow.ApproveCase(tx, logger, sealActor, caseItem.ID, map[string]bool{"final_review": true})
		return err
	})
	if err != nil {
		t.Fatalf("ApproveCase: %v", err)
	}
	if approved.Status != models.CaseStatusApproved {
		t.Fatalf("status = %s", approved.Status)
	}
	if approved.RelatedParcelId == nil {
		t.Fatal("approval must link the created parcel")
	}

	parcel, err := models.GetParcelById(ctx, *approved.RelatedParcelId)
	if err != nil {
		t.Fatalf("GetParcelById: %v", err)
	}
	if parcel.ParcelNumber != "DK-2026-7001" || parcel.OwnerId == nil || *parcel.OwnerId != applicant.ID {
		t.Errorf("parcel = %+v", parcel)
	}

	deed, err := models.GetActiveDeedByParcelId(ctx, parcel.ID)
	if err != nil {
		t.Fatalf("GetActiveDeedByParcelId: %v", err)
	}
	if deed.HolderId != applicant.ID || deed.ConservatorId != conservator.ID {
		t.Errorf("deed holder=%d conservator=%d", deed.HolderId, deed.ConservatorId)
	}
	wantSeal := models.ComputeDigitalSeal(deed.DeedNumber, parcel.ParcelNumber, deed.HolderId, deed.IssuedAt)
	if deed.DigitalSealHash != wantSeal {
		t.Errorf("stored seal does not verify: %s", deed.DigitalSealHash)
	}
	if deed.Department != "Ngor" {
		t.Errorf("deed department = %q, want the application locality", deed.Department)
	}

	// The committed outbox row awaits the dispatcher.
	var outboxCount int64
	if err := db.Model(&models.CaseEventRecord{}).
		Where("case_id = ? AND event_type = ? AND publish_status = ?", caseItem.ID, "case.approved", models.OutboxPublishStatusPending).
		Count(&outboxCount).Error; err != nil || outboxCount != 1 {
		t.Errorf("outbox rows = %d (err=%v), want 1 pending case.approved", outboxCount, err)
	}

	// Every ledger write left an audit record.
	var auditCount int64
	if err := db.Model(&models.AuditLog{}).
		Where("reference_type IN ?", []string{"parcels", "deeds", "cases"}).
		Count(&auditCount).Error; err != nil || auditCount < 3 {
		t.Errorf("audit rows = %d (err=%v), want at least parcel+deed+case", auditCount, err)
	}

	// Second approval of the same case is rejected, ledger untouched.
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.ApproveCase(tx, logger, sealActor, caseItem.ID, nil)
		return err
	})
	if utils.KindOf(err) != utils.ErrKindAlreadyApproved {
		t.Fatalf("duplicate approval: got %v, want ALREADY_APPROVED", err)
	}
	var deedCount int64
	if err := db.Model(&models.Deed{}).Where("parcel_id = ?", parcel.ID).Count(&deedCount).Error; err != nil || deedCount != 1 {
		t.Errorf("deed count = %d after duplicate approval", deedCount)
	}

	// Missing technical certification blocks approval.
	uncertified := models.Case{
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusOppositionPeriod,
		InitiatorId: applicant.ID,
		Data:        models.CaseData{ParcelNumber: "DK-2026-7002"},
	}
	if err := db.Create(&uncertified).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.ApproveCase(tx, logger, sealActor, uncertified.ID, nil)
		return err
	})
	if utils.KindOf(err) != utils.ErrKindSodViolation {
		t.Fatalf("uncertified approval: got %v, want SOD_VIOLATION", err)
	}

	// The certifying officer cannot also sign the approval, even with the seal.
	selfCertified := models.Case{
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusGovernorApproval,
		InitiatorId: applicant.ID,
		Data: models.CaseData{
			ParcelNumber:        "DK-2026-7003",
			CadastreValidatedAt: &certified,
			CadastreOfficerId:   conservator.ID,
		},
	}
	if err := db.Create(&selfCertified).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.ApproveCase(tx, logger, sealActor, selfCertified.ID, nil)
		return err
	})
	if utils.KindOf(err) != utils.ErrKindSodViolation {
		t.Fatalf("self-certified approval: got %v, want SOD_VIOLATION", err)
	}
}

// A technical query bounces the case back to the commission; the visit must
// be rebookable from there, and from every other open state.
func TestVisitRebookedAfterTechnicalQuery(t *testing.T) {
	db := setupIntegrationDB(t)
	logger := config.GetLogger()

	cadastre := models.User{FullName: "Cheikh Sow", Email: "cheikh@test.local", PasswordHash: "x", Role: models.UserRoleCadastre}
	agent := models.User{FullName: "Omar Diallo", Email: "omar@test.local", PasswordHash: "x", Role: models.UserRoleAgent}
	for _, u := range []*models.User{&cadastre, &agent} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	cadastreActor := models.Actor{Id: cadastre.ID, Role: models.UserRoleCadastre, Permissions: []string{"cases.validate_technical"}}
	agentActor := models.Actor{Id: agent.ID, Role: models.UserRoleAgent, Permissions: []string{"cases.schedule_visit"}}
	ctx := utils.SetUserIdInContext(context.Background(), agent.ID)

	caseItem := models.Case{
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusTechnicalValidation,
		InitiatorId: agent.ID,
		Data:        models.CaseData{ParcelNumber: "DK-2026-7100"},
	}
	if err := db.Create(&caseItem).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.TechnicalQuery(tx, logger, cadastreActor, caseItem.ID, "boundary sketch illegible")
		return err
	})
	if err != nil {
		t.Fatalf("TechnicalQuery: %v", err)
	}

	visitDate := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	var rebooked *models.Case
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rebooked, err = workflow.ScheduleVisit(tx, logger, agentActor, caseItem.ID, visitDate)
		return err
	})
	if err != nil {
		t.Fatalf("ScheduleVisit after technical query: %v", err)
	}
	if rebooked.Status != models.CaseStatusCommissionVisit {
		t.Errorf("status = %s, want commission_visit", rebooked.Status)
	}
	if rebooked.Data.VisitDate == nil || !rebooked.Data.VisitDate.Equal(visitDate) {
		t.Errorf("visit date = %v, want %v", rebooked.Data.VisitDate, visitDate)
	}

	// Closed files stay closed.
	closed := models.Case{
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusApproved,
		InitiatorId: agent.ID,
	}
	if err := db.Create(&closed).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.ScheduleVisit(tx, logger, agentActor, closed.ID, visitDate)
		return err
	})
	if utils.KindOf(err) != utils.ErrKindInvalidState {
		t.Fatalf("scheduling on a closed case: got %v, want INVALID_STATE", err)
	}
}

func TestDisputeFilingFlagsParcel(t *testing.T) {
	db := setupIntegrationDB(t)

	owner := models.User{FullName: "Awa Ndiaye", Email: "awa@test.local", PasswordHash: "x", Role: models.UserRoleOwner}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	parcel := models.Parcel{ParcelNumber: "DK-2026-7200", Locality: "Ngor", OwnerId: &owner.ID, Status: models.ParcelStatusRegistered}
	if err := db.Create(&parcel).Error; err != nil {
		t.Fatalf("create parcel: %v", err)
	}
	ctx := utils.SetUserIdInContext(context.Background(), owner.ID)

	for i := 0; i < 2; i++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.FlagParcelDisputed(tx, parcel.ID)
		})
		if err != nil {
			t.Fatalf("FlagParcelDisputed: %v", err)
		}
	}

	reloaded, err := models.GetParcelById(ctx, parcel.ID)
	if err != nil {
		t.Fatalf("GetParcelById: %v", err)
	}
	if reloaded.Status != models.ParcelStatusDisputed {
		t.Errorf("parcel status = %s, want disputed", reloaded.Status)
	}

	// The flip is idempotent: one audit row, no matter how often it is refiled.
	var auditCount int64
	if err := db.Model(&models.AuditLog{}).
		Where("reference_type = ? AND reference_id = ? AND action_type = ?", "parcels", parcel.ID, "UPDATE").
		Count(&auditCount).Error; err != nil || auditCount != 1 {
		t.Errorf("audit rows = %d (err=%v), want exactly 1", auditCount, err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("landregistry-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=landregistry_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
