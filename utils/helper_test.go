package utils

import "testing"

func TestMaskFullName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Awa Ndiaye Fall", "A.N.F."},
		{"Moussa Diop", "M.D."},
		{"Aminata", "A."},
		{"  spaced   out  ", "s.o."},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskFullName(tc.in); got != tc.want {
			t.Errorf("MaskFullName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKindOfClassifiesUnknownErrorsAsPersistence(t *testing.T) {
	err := NewRegistryError(ErrKindSodViolation, "blocked")
	if KindOf(err) != ErrKindSodViolation {
		t.Errorf("KindOf tagged error = %s", KindOf(err))
	}
	wrapped := WrapPersistence(err)
	// The outermost kind wins once wrapped.
	if KindOf(wrapped) != ErrKindPersistence {
		t.Errorf("KindOf wrapped = %s", KindOf(wrapped))
	}
	if KindOf(ErrorRecordNotFound) != ErrKindNotFound {
		t.Errorf("record-not-found sentinel should map to NOT_FOUND")
	}
}
