package models

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeForAuditRedactsSecrets(t *testing.T) {
	user := &User{
		ID:           1,
		FullName:     "Awa Ndiaye",
		Email:        "awa@example.sn",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
	}
	out := sanitizeForAudit(user)
	if strings.Contains(out, "$2a$10$") {
		t.Fatalf("password hash leaked into audit snapshot: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker, got %s", out)
	}
	if !strings.Contains(out, "awa@example.sn") {
		t.Errorf("non-sensitive fields must survive: %s", out)
	}
}

func TestSanitizeForAuditSummarizesSeals(t *testing.T) {
	deed := &Deed{
		ID:              2,
		DeedNumber:      "TF-000123",
		DigitalSealHash: "SHA256:deadbeef",
		IssuedAt:        time.Now(),
	}
	out := sanitizeForAudit(deed)
	if strings.Contains(out, "deadbeef") {
		t.Fatalf("seal hash leaked into audit snapshot: %s", out)
	}
	if !strings.Contains(out, "[SEAL]") {
		t.Errorf("expected seal marker, got %s", out)
	}
}

func TestSanitizeForAuditRedactsNestedObjects(t *testing.T) {
	parcel := &Parcel{
		ID:           3,
		ParcelNumber: "DK-2024-0042",
		Owner: &User{
			ID:           1,
			PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		},
	}
	out := sanitizeForAudit(parcel)
	if strings.Contains(out, "$2a$10$") {
		t.Fatalf("nested password hash leaked: %s", out)
	}
}

func TestSanitizeForAuditEmptyValuesStayEmpty(t *testing.T) {
	// An empty hash must not be replaced with a marker that suggests a value
	// was present.
	user := &User{ID: 1, FullName: "Awa Ndiaye"}
	out := sanitizeForAudit(user)
	if strings.Contains(out, "[REDACTED]") {
		t.Errorf("empty secret should not be marked redacted: %s", out)
	}
}
