package model

// JobState is the lifecycle state of an ArchiveJob.
type JobState string

// Archive job states. Pending moves to exactly one terminal state; Done may
// be followed by Deleted in destructive runs.
const (
	JobPending       JobState = "pending"
	JobAlreadyDone   JobState = "already-done"
	JobDone          JobState = "done"
	JobDeleted       JobState = "deleted"
	JobFailed        JobState = "failed"
	JobMissingMarker JobState = "missing-marker"
	JobNameConflict  JobState = "name-conflict"
	JobMismatch      JobState = "archive-mismatch"
)

// ArchiveJob zips one patient folder into the output directory.
type ArchiveJob struct {
	Err         error
	FolderPath  string
	ArchivePath string
	Name        string // Folder basename, also the archive base name
	State       JobState
	Size        int64 // Archive size in bytes once written
	Delete      bool
}
