package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the approval
// gate semantics against an in-memory store with the same locking shape as
// the production path (per-case serialization via the advisory lock):
// - concurrent approvals of one case settle exactly once
// - the check order is fixed: existence, terminal status, technical stamp,
//   independent officer
// Full DB integration coverage lives in the INTEGRATION_TESTS suite.

// The seal gate fires before any database work, so it is covered here
// directly against the production function.
func TestRejectWithoutSealIsForbidden(t *testing.T) {
	technicalOfficer := models.Actor{
		Id:          12,
		Role:        models.UserRoleCadastre,
		Permissions: []string{"cases.validate_technical"},
	}
	_, err := Reject(nil, nil, technicalOfficer, 1, "incomplete file")
	if utils.KindOf(err) != utils.ErrKindForbidden {
		t.Fatalf("reject without seal: got %v, want FORBIDDEN", err)
	}
}

type fakeApprover struct {
	mu       sync.Mutex
	muByCase map[int]*sync.Mutex
	cases    map[int]*models.Case
	approved int
}

func newFakeApprover(cases ...*models.Case) *fakeApprover {
	f := &fakeApprover{
		muByCase: map[int]*sync.Mutex{},
		cases:    map[int]*models.Case{},
	}
	for _, caseItem := range cases {
		f.cases[caseItem.ID] = caseItem
	}
	return f
}

// approve mirrors ApproveCase's gate order without the ledger writes.
func (f *fakeApprover) approve(actor models.Actor, caseId int) error {
	if !actor.HasPermission("cases.seal") {
		return utils.NewRegistryError(utils.ErrKindForbidden, "conservator seal required")
	}

	// Per-case serialization (production: GET_LOCK + SELECT ... FOR UPDATE).
	f.mu.Lock()
	cm := f.muByCase[caseId]
	if cm == nil {
		cm = &sync.Mutex{}
		f.muByCase[caseId] = cm
	}
	f.mu.Unlock()
	cm.Lock()
	defer cm.Unlock()

	caseItem, ok := f.cases[caseId]
	if !ok {
		return utils.NewRegistryError(utils.ErrKindNotFound, "case not found")
	}
	if caseItem.Status == models.CaseStatusApproved {
		return utils.NewRegistryError(utils.ErrKindAlreadyApproved, "case is already approved")
	}
	if caseItem.Status == models.CaseStatusRejected {
		return utils.NewRegistryError(utils.ErrKindInvalidState, "rejected case cannot be approved")
	}
	if caseItem.Type == models.CaseTypeNewRegistration || caseItem.Type == models.CaseTypeSubdivision {
		if caseItem.Data.CadastreValidatedAt == nil {
			return utils.NewRegistryError(utils.ErrKindSodViolation, "technical certification missing")
		}
		if caseItem.Data.CadastreOfficerId != 0 && caseItem.Data.CadastreOfficerId == actor.Id {
			return utils.NewRegistryError(utils.ErrKindSodViolation, "certifying officer cannot approve")
		}
	}

	caseItem.Status = models.CaseStatusApproved
	caseItem.AssignedToId = &actor.Id

	f.mu.Lock()
	f.approved++
	f.mu.Unlock()
	return nil
}

func certifiedCase(id int, officerId int) *models.Case {
	now := time.Now()
	return &models.Case{
		ID:          id,
		Type:        models.CaseTypeNewRegistration,
		Status:      models.CaseStatusGovernorApproval,
		InitiatorId: 7,
		Data: models.CaseData{
			ParcelNumber:        "DK-2024-0042",
			CadastreValidatedAt: &now,
			CadastreOfficerId:   officerId,
		},
	}
}

func sealActor(id int) models.Actor {
	return models.Actor{Id: id, Role: models.UserRoleConservator, Permissions: []string{"cases.seal"}}
}

func TestConcurrentApprovalsSettleExactlyOnce(t *testing.T) {
	for run := 0; run < 50; run++ {
		f := newFakeApprover(certifiedCase(1, 5))

		var wg sync.WaitGroup
		results := make([]error, 25)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = f.approve(sealActor(100+i), 1)
			}(i)
		}
		wg.Wait()

		if f.approved != 1 {
			t.Fatalf("run %d: expected exactly one approval, got %d", run, f.approved)
		}
		duplicates := 0
		for _, err := range results {
			if utils.KindOf(err) == utils.ErrKindAlreadyApproved {
				duplicates++
			}
		}
		if duplicates != 24 {
			t.Fatalf("run %d: expected 24 ALREADY_APPROVED outcomes, got %d", run, duplicates)
		}
	}
}

func TestApprovalGateOrder(t *testing.T) {
	uncertified := certifiedCase(2, 5)
	uncertified.Data.CadastreValidatedAt = nil
	rejected := certifiedCase(3, 5)
	rejected.Status = models.CaseStatusRejected
	transfer := &models.Case{ID: 4, Type: models.CaseTypeTransfer, Status: models.CaseStatusOppositionPeriod, InitiatorId: 7}
	selfCertified := certifiedCase(5, 42)

	f := newFakeApprover(uncertified, rejected, transfer, selfCertified)

	cases := []struct {
		name   string
		actor  models.Actor
		caseId int
		want   utils.ErrorKind
	}{
		{"missing permission outranks everything", models.Actor{Id: 1, Role: models.UserRoleCadastre}, 999, utils.ErrKindForbidden},
		{"unknown case", sealActor(1), 999, utils.ErrKindNotFound},
		{"rejected case is closed", sealActor(1), 3, utils.ErrKindInvalidState},
		{"missing technical certification", sealActor(1), 2, utils.ErrKindSodViolation},
		{"certifying officer cannot self-approve", sealActor(42), 5, utils.ErrKindSodViolation},
	}
	for _, tc := range cases {
		err := f.approve(tc.actor, tc.caseId)
		if utils.KindOf(err) != tc.want {
			t.Errorf("%s: got %v, want kind %s", tc.name, err, tc.want)
		}
	}

	// Transfers carry no technical certification requirement.
	if err := f.approve(sealActor(1), 4); err != nil {
		t.Errorf("transfer approval without cadastre stamp should pass the gate: %v", err)
	}

	// A different conservator may approve a case someone else certified.
	other := certifiedCase(6, 42)
	f2 := newFakeApprover(other)
	if err := f2.approve(sealActor(43), 6); err != nil {
		t.Errorf("independent conservator should approve: %v", err)
	}
}
