package drafts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/apex/log"
)

// ErrStorageFull is returned when the spool cannot accept another draft,
// either because the configured cap is reached or the filesystem is full.
var ErrStorageFull = errors.New("draft storage full")

// ErrDraftSubmitting is returned when a mutation targets a draft that is
// currently being submitted.
var ErrDraftSubmitting = errors.New("draft is being submitted")

// ErrDraftNotFound is returned when the draft id does not exist.
var ErrDraftNotFound = errors.New("draft not found")

// Draft statuses. A draft is Pending until submission resolves it; a draft
// whose submission was rejected or exhausted its retries becomes Failed and
// stays queued until the user retries or discards it.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// DefaultMaxDrafts caps the spool when no explicit limit is configured.
const DefaultMaxDrafts = 500

// Payload is the user-entered content of a draft. The photo stays on disk at
// PhotoRef; only the reference is spooled.
type Payload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category,omitempty"`
	Note      string  `json:"note,omitempty"`
	PhotoRef  string  `json:"photo_ref"`
}

// Draft is one queued submission.
type Draft struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	Status    string    `json:"status"`
}

// Store is a durable FIFO spool of drafts. Each draft is one JSON file named
// by its sequence number, so lexical order is submission order and a crash
// between operations loses at most the draft being written.
type Store struct {
	dir       string
	maxDrafts int

	mu         sync.Mutex
	nextSeq    uint64
	submitting string // draft id currently being submitted, "" if none
}

// Open loads (or creates) a spool directory.
func Open(dir string, maxDrafts int) (*Store, error) {
	if maxDrafts <= 0 {
		maxDrafts = DefaultMaxDrafts
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}

	s := &Store{dir: dir, maxDrafts: maxDrafts}

	drafts, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.Seq >= s.nextSeq {
			s.nextSeq = d.Seq + 1
		}
	}
	log.Infof("Draft spool opened: %s (%d queued)", dir, len(drafts))
	return s, nil
}

// Enqueue appends a new pending draft and persists it before returning.
func (s *Store) Enqueue(p Payload) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(drafts) >= s.maxDrafts {
		return nil, fmt.Errorf("%w: %d drafts queued", ErrStorageFull, len(drafts))
	}

	seq := s.nextSeq
	d := &Draft{
		ID:        fmt.Sprintf("draft-%012d", seq),
		Seq:       seq,
		Payload:   p,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
	if err := s.write(d); err != nil {
		return nil, err
	}
	s.nextSeq = seq + 1
	return d, nil
}

// List returns all queued drafts oldest first.
func (s *Store) List() ([]Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Pending returns queued drafts that are still pending, oldest first.
func (s *Store) Pending() ([]Draft, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var pending []Draft
	for _, d := range all {
		if d.Status == StatusPending {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// Get returns a single draft by id.
func (s *Store) Get(id string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

// Remove deletes a draft after its submission resolved. It is the sync
// engine's half of the single-writer discipline and may clear the in-flight
// mark; user deletions go through Discard.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting == id {
		s.submitting = ""
	}
	return s.delete(id)
}

// Discard deletes a draft at the user's request, typically one parked as
// failed. A draft that is currently being submitted cannot be discarded; the
// in-flight submission owns it until EndSubmit.
func (s *Store) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting == id {
		return fmt.Errorf("%w: %s", ErrDraftSubmitting, id)
	}
	return s.delete(id)
}

func (s *Store) delete(id string) error {
	d, err := s.get(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(d.Seq)); err != nil {
		return fmt.Errorf("failed to remove draft %s: %w", id, err)
	}
	return nil
}

// MarkAttempt records a transient submission failure.
func (s *Store) MarkAttempt(id string, submitErr error) error {
	return s.update(id, func(d *Draft) {
		d.Attempts++
		d.LastError = submitErr.Error()
	})
}

// MarkFailed parks a draft after a permanent rejection or retry exhaustion.
// The draft stays queued for the user to retry or discard.
func (s *Store) MarkFailed(id string, submitErr error) error {
	return s.update(id, func(d *Draft) {
		d.LastError = submitErr.Error()
		d.Status = StatusFailed
	})
}

// Retry returns a failed draft to the pending queue and resets its attempt
// counter.
func (s *Store) Retry(id string) error {
	return s.update(id, func(d *Draft) {
		d.Status = StatusPending
		d.Attempts = 0
		d.LastError = ""
	})
}

// BeginSubmit marks a draft as in flight. Mutations and a second BeginSubmit
// are rejected until EndSubmit. The in-flight mark is deliberately not
// persisted: after a crash the draft is pending again and the server's
// idempotent ingestion absorbs the re-send.
func (s *Store) BeginSubmit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting != "" {
		return fmt.Errorf("%w: %s", ErrDraftSubmitting, s.submitting)
	}
	if _, err := s.get(id); err != nil {
		return err
	}
	s.submitting = id
	return nil
}

// EndSubmit clears the in-flight mark.
func (s *Store) EndSubmit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting == id {
		s.submitting = ""
	}
}

func (s *Store) update(id string, mutate func(*Draft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get(id)
	if err != nil {
		return err
	}
	mutate(d)
	return s.write(d)
}

func (s *Store) get(id string) (*Draft, error) {
	drafts, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		if drafts[i].ID == id {
			return &drafts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
}

func (s *Store) path(seq uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%012d.json", seq))
}

// write persists a draft with a tmp file, fsync and rename so a crash never
// leaves a half-written draft in the spool.
func (s *Store) write(d *Draft) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	final := s.path(d.Seq)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return spoolErr("failed to create draft file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return spoolErr("failed to write draft", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return spoolErr("failed to sync draft", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return spoolErr("failed to close draft file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return spoolErr("failed to publish draft file", err)
	}
	return nil
}

func (s *Store) load() ([]Draft, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool dir: %w", err)
	}

	var drafts []Draft
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read draft %s: %w", name, err)
		}
		var d Draft
		if err := json.Unmarshal(data, &d); err != nil {
			log.Warnf("Skipping corrupt draft file %s: %v", name, err)
			continue
		}
		drafts = append(drafts, d)
	}

	sort.Slice(drafts, func(i, j int) bool { return drafts[i].Seq < drafts[j].Seq })
	return drafts, nil
}

// spoolErr maps out-of-space failures to ErrStorageFull so callers can tell
// the user, and wraps everything else.
func spoolErr(msg string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
