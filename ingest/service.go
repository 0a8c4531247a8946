package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"civicspot/classifier"
	"civicspot/database"
	"civicspot/dedup"
	"civicspot/metrics"
	"civicspot/models"
	"civicspot/rabbitmq"
)

// ErrValidation marks a malformed submission. Not retried by clients.
var ErrValidation = errors.New("invalid submission")

// ErrUnavailable marks a transient server-side degradation (lock contention,
// deadlock). Clients retry with backoff.
var ErrUnavailable = errors.New("ingestion temporarily unavailable")

// MySQL error numbers treated as transient serialization conflicts.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// Service orchestrates submission ingestion: classify, then detect-or-create
// under a spatial serialization boundary.
type Service struct {
	db          *database.Database
	classifier  classifier.Client // nil means always use defaults
	publisher   *rabbitmq.Publisher
	radius      float64
	lockWait    time.Duration
	lockRetries int
	photoDir    string
	now         func() time.Time
}

// NewService creates the ingestion service. The classifier and publisher may
// be nil; ingestion then falls back to default classification and skips
// event publishing.
func NewService(db *database.Database, cls classifier.Client, pub *rabbitmq.Publisher, radiusMeters float64, lockWait time.Duration, lockRetries int, uploadDir string) *Service {
	if radiusMeters <= 0 {
		radiusMeters = dedup.DefaultRadiusMeters
	}
	if lockRetries < 1 {
		lockRetries = 1
	}
	return &Service{
		db:          db,
		classifier:  cls,
		publisher:   pub,
		radius:      radiusMeters,
		lockWait:    lockWait,
		lockRetries: lockRetries,
		photoDir:    uploadDir,
		now:         time.Now,
	}
}

// Submit ingests one submission for the authenticated user. It returns the
// created report, or a conflict result when the submission collapsed into an
// existing report (recording an upvote).
func (s *Service) Submit(ctx context.Context, userID string, req *models.SubmitReportRequest) (*models.SubmitReportResponse, error) {
	start := s.now()
	defer func() {
		metrics.IngestDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if err := validate(userID, req); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, err
	}

	sum := sha256.Sum256(req.Photo)
	imageHash := hex.EncodeToString(sum[:])

	// Exact-image short-circuit: the same user re-submitting the same photo
	// is a duplicate by definition. Checked before the classifier call so a
	// retry after an ambiguous timeout never pays for a second analysis.
	existing, err := s.db.FindUserReportByImageHash(ctx, userID, imageHash)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	if existing != nil {
		resp, err := s.collapseInto(ctx, userID, req, existing)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, err
		}
		return resp, nil
	}

	analysis := s.classify(ctx, req.Photo)
	category := analysis.Category
	aiGenerated := analysis.AIGenerated
	if req.Category != "" {
		category = req.Category
		aiGenerated = false
	}

	var resp *models.SubmitReportResponse
	keys := dedup.LockKeys(req.Latitude, req.Longitude, s.radius)

	// The detect-then-write sequence is a check-then-act race under
	// concurrent submissions; it runs under advisory locks covering the
	// candidate's neighborhood. Lock contention is retried here, not
	// surfaced to the device.
	for attempt := 0; attempt < s.lockRetries; attempt++ {
		err = s.db.WithSpatialLock(ctx, keys, s.lockWait, func(ctx context.Context) error {
			candidates, err := s.db.GetActiveReportsNear(ctx, req.Latitude, req.Longitude, s.radius, category)
			if err != nil {
				return err
			}

			if match := dedup.ClosestMatch(req.Latitude, req.Longitude, category, candidates, s.radius); match != nil {
				r, err := s.collapseInto(ctx, userID, req, match)
				if err != nil {
					return err
				}
				resp = r
				return nil
			}

			report := &models.Report{
				ID:          uuid.NewString(),
				UserID:      userID,
				Latitude:    req.Latitude,
				Longitude:   req.Longitude,
				Category:    category,
				Severity:    analysis.Severity,
				Status:      models.StatusReported,
				AIGenerated: aiGenerated,
				PhotoURL:    s.savePhoto(req.Photo),
				ImageHash:   imageHash,
			}
			if err := s.db.CreateReport(ctx, report); err != nil {
				return err
			}
			report.CreatedAt = s.now().UTC()
			report.UpdatedAt = report.CreatedAt

			metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
			s.publish(models.EventReportCreated, report)
			resp = &models.SubmitReportResponse{Created: true, Report: report}
			return nil
		})
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			break
		}
		log.Warnf("Spatial lock contention (attempt %d/%d): %v", attempt+1, s.lockRetries, err)
	}

	if isTransient(err) {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	return nil, err
}

// collapseInto records the submission as an upvote on an existing report and
// builds the conflict result.
func (s *Service) collapseInto(ctx context.Context, userID string, req *models.SubmitReportRequest, match *models.Report) (*models.SubmitReportResponse, error) {
	upvote, err := s.db.Upvote(ctx, match.ID, userID)
	if err != nil {
		return nil, err
	}

	distance := dedup.Distance(req.Latitude, req.Longitude, match.Latitude, match.Longitude)
	age := int64(s.now().Sub(match.CreatedAt) / time.Second)
	if age < 0 {
		age = 0
	}

	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
	metrics.DuplicateDistanceMeters.Observe(distance)
	if !upvote.AlreadyUpvoted {
		matched := *match
		matched.UpvoteCount = upvote.UpvoteCount
		s.publish(models.EventReportUpvoted, &matched)
	}

	return &models.SubmitReportResponse{
		Duplicate: &models.ConflictResult{
			ReportID:       match.ID,
			Status:         match.Status,
			AgeSeconds:     age,
			DistanceMeters: distance,
			UpvoteCount:    upvote.UpvoteCount,
			AlreadyUpvoted: upvote.AlreadyUpvoted,
			Message: fmt.Sprintf(
				"A %s issue was already reported %.0f m away; your submission was counted as an upvote.",
				match.Category, distance),
		},
	}, nil
}

// ChangeStatus transitions a report and publishes the change.
func (s *Service) ChangeStatus(ctx context.Context, reportID, newStatus, changedBy string) (*models.Report, error) {
	if !models.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}
	report, err := s.db.UpdateReportStatus(ctx, reportID, newStatus, changedBy)
	if err != nil {
		return nil, err
	}
	s.publish(models.EventReportStatusChanged, report)
	return report, nil
}

func (s *Service) classify(ctx context.Context, photo []byte) classifier.Analysis {
	if s.classifier == nil {
		return classifier.Default()
	}
	analysis, err := s.classifier.AnalyzeImage(ctx, photo)
	if err != nil {
		log.Warnf("Classifier failed, using defaults: %v", err)
		return classifier.Default()
	}
	return analysis
}

func (s *Service) publish(eventType string, report *models.Report) {
	if s.publisher == nil {
		return
	}
	event := models.ReportEvent{Type: eventType, Report: report, Timestamp: s.now().UTC()}
	if err := s.publisher.PublishWithRoutingKey(eventType, event); err != nil {
		log.Warnf("Failed to publish %s event for report %s: %v", eventType, report.ID, err)
	}
}

func (s *Service) savePhoto(photo []byte) string {
	if s.photoDir == "" {
		return ""
	}
	if err := os.MkdirAll(s.photoDir, 0o755); err != nil {
		log.Warnf("Failed to create upload dir: %v", err)
		return ""
	}
	name := uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(s.photoDir, name), photo, 0o644); err != nil {
		log.Warnf("Failed to save photo: %v", err)
		return ""
	}
	return "/uploads/" + name
}

func validate(userID string, req *models.SubmitReportRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty payload", ErrValidation)
	}
	if req.Version != "2.0" {
		return fmt.Errorf("%w: unsupported version %q, expected \"2.0\"", ErrValidation, req.Version)
	}
	if userID == "" {
		return fmt.Errorf("%w: missing caller identity", ErrValidation)
	}
	if req.Latitude < -90 || req.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidation)
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidation)
	}
	if len(req.Photo) == 0 {
		return fmt.Errorf("%w: photo is required", ErrValidation)
	}
	if req.Category != "" && !models.ValidCategory(req.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, req.Category)
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, database.ErrLockTimeout) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrLockWaitTimeout || mysqlErr.Number == mysqlErrDeadlock
	}
	return false
}
