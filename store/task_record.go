package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/sendwave/campaignsched/internal/types"
)

const tasksBucket = "tasks"

// TaskRecord is the only task state this layer persists: status,
// timing and duration. Plans, jobs and the status matrix are runtime
// state owned by the scheduler and are never written here.
type TaskRecord struct {
	TaskID       string           `json:"task_id"`
	Status       types.TaskStatus `json:"status"`
	StartTime    *time.Time       `json:"start_time,omitempty"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	DurationDays int              `json:"duration_days"`
}

// TaskRecordStore persists TaskRecords to a bbolt database file.
type TaskRecordStore struct {
	db *bbolt.DB
}

// OpenTaskRecordStore opens (creating if necessary) a bbolt database at
// path and ensures its bucket exists.
func OpenTaskRecordStore(path string) (*TaskRecordStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db at %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tasksBucket))
		return errors.Wrapf(err, "create %s bucket", tasksBucket)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &TaskRecordStore{db: db}, nil
}

// Close closes the underlying database.
func (s *TaskRecordStore) Close() error {
	return s.db.Close()
}

// UpdateTaskStatus implements scheduler.TaskRecorder: it upserts the
// record's status and timing fields in a single transaction.
func (s *TaskRecordStore) UpdateTaskStatus(taskID string, status types.TaskStatus, start, end *time.Time, durationDays int) error {
	rec := TaskRecord{
		TaskID:       taskID,
		Status:       status,
		StartTime:    start,
		EndTime:      end,
		DurationDays: durationDays,
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal task record")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tasksBucket))
		return errors.Wrapf(b.Put([]byte(taskID), encoded), "put task record %s", taskID)
	})
}

// GetTaskRecord retrieves a persisted record. It returns
// (TaskRecord{}, false, nil) when no record exists for taskID.
func (s *TaskRecordStore) GetTaskRecord(taskID string) (TaskRecord, bool, error) {
	var rec TaskRecord
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tasksBucket))
		val := b.Get([]byte(taskID))
		if val == nil {
			return nil
		}
		found = true
		return errors.Wrap(json.Unmarshal(val, &rec), "unmarshal task record")
	})
	if err != nil {
		return TaskRecord{}, false, err
	}
	return rec, found, nil
}

// DeleteTaskRecord removes a persisted record, if any.
func (s *TaskRecordStore) DeleteTaskRecord(taskID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tasksBucket))
		return errors.Wrapf(b.Delete([]byte(taskID)), "delete task record %s", taskID)
	})
}

// ListTaskRecords returns every persisted record, for admin/diagnostic
// use. Order is the bucket's key order (lexicographic by taskID).
func (s *TaskRecordStore) ListTaskRecords() ([]TaskRecord, error) {
	var records []TaskRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tasksBucket))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec TaskRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "unmarshal task record %s", string(k))
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}
