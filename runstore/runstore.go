// Package runstore persists evaluation results and run heartbeats in
// a bolt database, so the layer above can pick up finished runs and
// monitor long solves.
package runstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/ovinelab/breedeval/mme"
)

// log is the global logging variable.
var log = logging.MustGetLogger("runstore")

// bucket names
var (
	resultsBucket    = []byte("results")
	heartbeatsBucket = []byte("heartbeats")
)

// Heartbeat records the last stage a run reported.
type Heartbeat struct {
	Run   string    `json:"run"`
	Stage string    `json:"stage"`
	Time  time.Time `json:"time"`
}

// Store wraps a bolt database of evaluation runs.
type Store struct {
	db *bolt.DB
	// heartbeat throttling
	last    time.Time
	seconds float64
}

// Open opens (creating if needed) a run store. seconds throttles
// heartbeat writes; zero disables throttling.
func Open(path string, seconds float64) (*Store, error) {
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, seconds: seconds}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult stores a finished evaluation result under the run name.
// Results are immutable; a rerun under the same name supersedes the
// stored one.
func (s *Store) SaveResult(run string, res *mme.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		log.Error("Error serializing result", err)
		return err
	}
	err = save(s.db, resultsBucket, []byte(run), data)
	if err != nil {
		log.Error("Error saving result", err)
	}
	return err
}

// LoadResult returns the stored result for a run name, or nil if none
// was saved.
func (s *Store) LoadResult(run string) (*mme.Result, error) {
	data, err := load(s.db, resultsBucket, []byte(run))
	if err != nil || data == nil {
		return nil, err
	}
	var res mme.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("corrupt result for run %q: %v", run, err)
	}
	return &res, nil
}

// SaveHeartbeat records a stage transition for a run, subject to
// throttling.
func (s *Store) SaveHeartbeat(run, stage string) error {
	if s.seconds > 0 && time.Since(s.last).Seconds() < s.seconds {
		return nil
	}
	s.last = time.Now()
	hb := Heartbeat{Run: run, Stage: stage, Time: s.last}
	data, err := json.Marshal(&hb)
	if err != nil {
		return err
	}
	return save(s.db, heartbeatsBucket, []byte(run), data)
}

// LastHeartbeat returns the most recent heartbeat for a run, or nil.
func (s *Store) LastHeartbeat(run string) (*Heartbeat, error) {
	data, err := load(s.db, heartbeatsBucket, []byte(run))
	if err != nil || data == nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

// save stores a value in the bolt database.
func save(db *bolt.DB, bucket, key, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// load reads a value from the bolt database.
func load(db *bolt.DB, bucket, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
