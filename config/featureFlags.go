package config

import (
	"os"
	"strings"
)

// SubdivisionParentPolicy controls what happens to the parent parcel when a
// subdivision case is approved. The statute is silent on this, so it is a
// deployment decision rather than hardcoded behavior.
//
// Set via env:
// - SUBDIVISION_PARENT_POLICY=retain (default) keeps the parent parcel untouched
// - SUBDIVISION_PARENT_POLICY=archive marks the parent parcel Archived in the
//   same approval transaction
type SubdivisionParentPolicyValue string

const (
	SubdivisionParentRetain  SubdivisionParentPolicyValue = "retain"
	SubdivisionParentArchive SubdivisionParentPolicyValue = "archive"
)

func SubdivisionParentPolicy() SubdivisionParentPolicyValue {
	v := SubdivisionParentPolicyValue(strings.ToLower(strings.TrimSpace(os.Getenv("SUBDIVISION_PARENT_POLICY"))))
	if v == SubdivisionParentArchive {
		return SubdivisionParentArchive
	}
	return SubdivisionParentRetain
}
