package store

import "time"

// FileStatus is the closed enum driving the file status state machine.
type FileStatus string

const (
	FileStatusQueued    FileStatus = "queued"
	FileStatusEncoding  FileStatus = "encoding"
	FileStatusFinished  FileStatus = "finished"
	FileStatusSkipped   FileStatus = "skipped"
	FileStatusExcluded  FileStatus = "excluded"
	FileStatusRejected  FileStatus = "rejected"
	FileStatusErrored   FileStatus = "errored"
	FileStatusCancelled FileStatus = "cancelled"
)

// ExclusionType distinguishes a byte-exact folder-prefix rule from a glob
// pattern rule.
type ExclusionType string

const (
	ExclusionTypeFolder  ExclusionType = "folder"
	ExclusionTypePattern ExclusionType = "pattern"
)

// Library is a configured root directory containing media files.
type Library struct {
	ID           int64
	Name         string
	Path         string
	Enabled      bool
	WatchEnabled bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Exclusion is a scoped rule that prevents files under it from being
// queued. LibraryID nil means global.
type Exclusion struct {
	ID        int64
	LibraryID *int64
	Pattern   string
	Type      ExclusionType
	Reason    *string
	CreatedAt time.Time
}

// File is a single discovered media file and its classification/encoding
// history.
type File struct {
	ID               int64
	LibraryID        int64
	FilePath         string
	FileName         string
	OriginalCodec    *string
	OriginalBitrate  *int64
	OriginalSize     *int64
	OriginalWidth    *int
	OriginalHeight   *int
	IsHDR            bool
	NewSize          *int64
	Status           FileStatus
	SkipReason       *string
	ErrorMessage     *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Setting is a single mutable key/value configuration entry.
type Setting struct {
	Key   string
	Value string
}

// StatsDaily is the additive per-UTC-day aggregate.
type StatsDaily struct {
	Date                 string // YYYY-MM-DD
	TotalFilesProcessed  int64
	TotalSpaceSaved      int64
	FilesFinished        int64
	FilesSkipped         int64
	FilesRejected        int64
	FilesErrored         int64
}

// StatsHourly is the additive per-UTC-hour aggregate.
type StatsHourly struct {
	HourUTC              time.Time
	TotalFilesProcessed  int64
	TotalSpaceSaved      int64
	FilesFinished        int64
	FilesSkipped         int64
	FilesRejected        int64
	FilesErrored         int64
}

// EncodingLogEntry is a single append-only audit event tied to a file.
type EncodingLogEntry struct {
	ID        int64
	FileID    int64
	Event     string
	Details   string
	CreatedAt time.Time
}

// NullInt64 mirrors sql.NullInt64 for callers that want a plain value type
// without importing database/sql.
type NullInt64 struct {
	Int64 int64
	Valid bool
}

// NullString mirrors sql.NullString.
type NullString struct {
	String string
	Valid  bool
}

// NullTime mirrors sql.NullTime.
type NullTime struct {
	Time  time.Time
	Valid bool
}
