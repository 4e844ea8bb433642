// Package importer streams tabular price lists into the catalog, matching
// rows against canonical materials and queueing the rest for manual review.
package importer

import (
	"errors"
	"time"
)

// SessionStatus tracks one import run.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// ResolutionStatus tracks the manual reconciliation of an unmatched row.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionRejected ResolutionStatus = "rejected"
)

// ImportSession is the header record of one file-import run.
type ImportSession struct {
	ID            int64
	SourceFile    string
	CustomerID    *int64
	VendorID      *int64
	Status        SessionStatus
	ProcessedRows int
	ErrorRows     int
	CreatedAt     time.Time
}

// UnmatchedImport is a raw row the resolver could not map to a material.
type UnmatchedImport struct {
	ID                  int64
	SessionID           int64
	RawName             string
	RawPrice            *float64
	RawUnit             string
	RawArticle          string
	SuggestedMaterialID *string
	Status              ResolutionStatus
	ResolvedMaterialID  *string
	CreatedAt           time.Time
}

// RawRow is the extracted view of one data row.
type RawRow struct {
	Name    string
	Price   *float64
	Unit    string
	Article string
}

// Summary is returned by every import run, including partially failed ones.
type Summary struct {
	SessionID int64
	SourceID  int64
	TotalRows int
	Processed int
	Errors    int
	Unmatched []RawRow
}

var (
	// ErrNoNameColumn makes a sheet un-importable: nothing identifies the material.
	ErrNoNameColumn = errors.New("importer: no material name column detected")
	// ErrNotFound indicates a missing session or unmatched record.
	ErrNotFound = errors.New("importer: not found")
	// ErrAlreadyResolved rejects a second resolution of the same row.
	ErrAlreadyResolved = errors.New("importer: row already resolved")
)
