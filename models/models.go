package models

import "time"

// Report categories the classifier is allowed to return. A category override
// from the caller must also be one of these.
var ValidCategories = []string{
	"Pothole",
	"Water Leak",
	"Vandalism",
	"Broken Streetlight",
	"Illegal Dumping",
	"Other",
}

const (
	DefaultCategory = "Other"
	DefaultSeverity = 5
)

// Report statuses. A report leaves duplicate consideration when it is fixed.
const (
	StatusReported   = "Reported"
	StatusInProgress = "In Progress"
	StatusFixed      = "Fixed"
)

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known report status.
func ValidStatus(s string) bool {
	return s == StatusReported || s == StatusInProgress || s == StatusFixed
}

// Report is a server-persisted issue record.
type Report struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Category    string    `json:"category"`
	Severity    int       `json:"severity"`
	Status      string    `json:"status"`
	UpvoteCount int       `json:"upvote_count"`
	AIGenerated bool      `json:"ai_generated"`
	Archived    bool      `json:"archived"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	ImageHash   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Upvote is one user's endorsement of a report. The (report_id, user_id)
// pair is unique; repeated upvotes are no-ops.
type Upvote struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitReportRequest is the ingestion payload sent by a device.
type SubmitReportRequest struct {
	Version   string  `json:"version"` // Must be "2.0"
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category,omitempty"` // optional caller override
	Note      string  `json:"note,omitempty"`
	Photo     []byte  `json:"photo"`
}

// ConflictResult describes a duplicate match. It is a terminal success from
// the submitter's point of view: the submission was counted as an upvote on
// the existing report.
type ConflictResult struct {
	ReportID       string  `json:"report_id"`
	Status         string  `json:"status"`
	AgeSeconds     int64   `json:"age_seconds"`
	DistanceMeters float64 `json:"distance_meters"`
	UpvoteCount    int     `json:"upvote_count"`
	AlreadyUpvoted bool    `json:"already_upvoted"`
	Message        string  `json:"message"`
}

// SubmitReportResponse is the ingestion result: exactly one of Report
// (created) or Duplicate (matched an existing report) is set.
type SubmitReportResponse struct {
	Created   bool            `json:"created"`
	Report    *Report         `json:"report,omitempty"`
	Duplicate *ConflictResult `json:"duplicate,omitempty"`
}

// UpvoteResult is the outcome of an upvote attempt.
type UpvoteResult struct {
	ReportID       string `json:"report_id"`
	UpvoteCount    int    `json:"upvote_count"`
	AlreadyUpvoted bool   `json:"already_upvoted"`
}

// StatusChangeRequest transitions a report between statuses.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// ReportEvent is published to the message broker on report lifecycle changes.
type ReportEvent struct {
	Type      string    `json:"type"` // report.created, report.upvoted, report.status_changed
	Report    *Report   `json:"report"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventReportCreated       = "report.created"
	EventReportUpvoted       = "report.upvoted"
	EventReportStatusChanged = "report.status_changed"
)
