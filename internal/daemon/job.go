package daemon

import (
	"time"

	"github.com/alivesay/squire/internal/supervise"
)

// ListKind tells title paging lists from item paging lists
type ListKind int

const (
	UnknownList ListKind = iota
	TitleList
	ItemList
)

// String is also the word used in output file names
func (k ListKind) String() string {
	switch k {
	case TitleList:
		return "Title"
	case ItemList:
		return "Item"
	}
	return "INVALID"
}

// JobState tracks a title list through the correlator
type JobState int

const (
	Detected JobState = iota
	Archived
	RunningTitleParse
	WaitingForItems
	Reconciled
	Failed
)

var jobStateNames = map[JobState]string{
	Detected:          "detected",
	Archived:          "archived",
	RunningTitleParse: "running",
	WaitingForItems:   "waiting-for-items",
	Reconciled:        "reconciled",
	Failed:            "failed",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Job is the correlator's bookkeeping for one title list. The process handle
// is referenced, never extended.
type Job struct {
	Key       string
	Basename  string
	Timestamp string

	SourcePath  string
	ArchivePath string
	CSVPath     string
	XMLPath     string

	State         JobState
	Process       supervise.Process
	DetectedAt    time.Time
	WaitStartedAt time.Time
}
