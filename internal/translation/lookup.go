package translation

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
)

// Query describes one target-side row lookup. Exactly one of GUID and
// CodeName is used: GUID when it is not uuid.Nil.
type Query struct {
	ObjectType string
	GUID       uuid.UUID
	CodeName   string

	// BySite constrains the lookup to SiteID; 0 selects global rows.
	BySite bool
	SiteID int64

	// ParentID and GroupID constrain the lookup when non-zero.
	ParentID int64
	GroupID  int64
}

// Lookup is the target storage seam. Implementations return ir.Unresolved
// with a nil error when no row matches.
type Lookup interface {
	FindObject(ctx context.Context, q Query) (ir.ID, error)
	FindSite(ctx context.Context, siteName string) (ir.ID, error)
}
