// Package store persists task records and per-round submissions in bbolt.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	tasksBucket       = []byte("tasks")
	submissionsBucket = []byte("submissions")
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Task status values.
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskRecord tracks one task invocation for a round.
type TaskRecord struct {
	TaskID      string    `json:"taskId"`
	RoundNumber int       `json:"roundNumber"`
	RepoURL     string    `json:"repoUrl"`
	Status      string    `json:"status"`
	PRURL       string    `json:"prUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Submission is what a worker self-reports for a round.
type Submission struct {
	TaskID         string `json:"taskId"`
	RoundNumber    int    `json:"roundNumber"`
	PRURL          string `json:"prUrl"`
	RepoURL        string `json:"repoUrl"`
	GithubUsername string `json:"githubUsername,omitempty"`
}

// Store is a bbolt-backed store. It is safe for concurrent use.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{tasksBucket, submissionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func taskKey(taskID string, round int) []byte {
	return []byte(taskID + "/" + strconv.Itoa(round))
}

func roundKey(round int) []byte {
	return []byte(strconv.Itoa(round))
}

// PutTask inserts or replaces a task record. UpdatedAt is set by the store.
func (s *Store) PutTask(rec TaskRecord) error {
	rec.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling task record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).Put(taskKey(rec.TaskID, rec.RoundNumber), data)
	})
}

// Task returns the record for taskID in round.
func (s *Store) Task(taskID string, round int) (*TaskRecord, error) {
	var rec TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(tasksBucket).Get(taskKey(taskID, round))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutSubmission stores the submission for its round, replacing any earlier one.
func (s *Store) PutSubmission(sub Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(submissionsBucket).Put(roundKey(sub.RoundNumber), data)
	})
}

// Submission returns the submission for round, or ErrNotFound.
func (s *Store) Submission(round int) (*Submission, error) {
	var sub Submission
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(submissionsBucket).Get(roundKey(round))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
