package store

import (
	"time"

	"github.com/danielpatrickdp/cropnet/internal/discretize"
)

// #region threshold-version
// ThresholdVersion is a versioned snapshot of the threshold table produced
// by one discretization run.
type ThresholdVersion struct {
	VersionID string
	ParentID  string
	Table     discretize.Table
	Buckets   int    // requested bucket count k
	Source    string // input the table was fitted on, e.g. a CSV path
	CreatedAt time.Time
}

// #endregion threshold-version

// #region constraint-record
// ConstraintRecord describes a cached constraint set.
type ConstraintRecord struct {
	MappingHash string
	Markers     string
	Variables   int
	Edges       int
	CreatedAt   time.Time
}

// #endregion constraint-record
