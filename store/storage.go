package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/request"
)

var (
	// ErrRequestNotFound is returned when a request id is not registered
	ErrRequestNotFound = errors.New("request not found")

	// ErrAlreadyResolved is returned when trying to move a property
	// out of a terminal state. Terminal states are final - this keeps
	// status snapshots monotonic.
	ErrAlreadyResolved = errors.New("property already resolved")
)

// RequestRecord is the submission payload the store persists.
type RequestRecord struct {
	RequestID      string
	Properties     []dataset.PhysicalProperty
	ForceFieldJSON []byte
	OptionsJSON    []byte
}

// Meta is the request-level metadata handed to the compute backend.
type Meta struct {
	SubmittedAt    time.Time
	PropertyOrder  []string
	ForceFieldJSON []byte
	OptionsJSON    []byte
}

// DB is a wrapper around badger.DB tracking per-request property
// states. It is the sole mutator of request state; all state
// transitions go through Resolve* methods which refuse to leave
// a terminal state.
type DB struct {
	bdb *badger.DB
}

// Close closes the internal Badger database. It is possible to call
// the method on a nil instance or on an uninitialized DB object, in
// which case it is a NOP.
func (db *DB) Close() error {
	if db != nil && db.bdb != nil {
		return db.bdb.Close()
	}
	return nil
}

// RegisterRequest stores the request metadata and all its properties
// in the queued state within a single transaction.
func (db *DB) RegisterRequest(rec RequestRecord) error {
	meta := requestMeta{
		SubmittedAt:    time.Now().Unix(),
		PropertyOrder:  make([]string, len(rec.Properties)),
		ForceFieldJSON: rec.ForceFieldJSON,
		OptionsJSON:    rec.OptionsJSON,
	}
	for i, p := range rec.Properties {
		meta.PropertyOrder[i] = p.ID
	}
	metaBytes, err := encodeMeta(meta)
	if err != nil {
		return fmt.Errorf("failed to register request: %w", err)
	}
	return db.bdb.Update(func(txn *badger.Txn) error {
		if err := txn.Set(encodeMetaKey(rec.RequestID), metaBytes); err != nil {
			return fmt.Errorf("failed to register request: %w", err)
		}
		for _, p := range rec.Properties {
			recBytes, err := encodeProperty(storedProperty{State: stateQueued, Property: p})
			if err != nil {
				return fmt.Errorf("failed to register request: %w", err)
			}
			key := encodePropertyKey(PropertyStatePrefix, rec.RequestID, p.ID)
			if err := txn.Set(key, recBytes); err != nil {
				return fmt.Errorf("failed to register request: %w", err)
			}
		}
		return nil
	})
}

// Meta loads the request-level metadata of a registered request.
func (db *DB) Meta(requestID string) (Meta, error) {
	var meta requestMeta
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeMetaKey(requestID))
		if err == badger.ErrKeyNotFound {
			return ErrRequestNotFound

		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			meta, err = decodeMeta(val)
			return err
		})
	})
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		SubmittedAt:    time.Unix(meta.SubmittedAt, 0),
		PropertyOrder:  meta.PropertyOrder,
		ForceFieldJSON: meta.ForceFieldJSON,
		OptionsJSON:    meta.OptionsJSON,
	}, nil
}

// Snapshot produces the current partition of the request's properties
// across the queued/estimated/unsuccessful buckets, in submission
// order, plus all exceptions recorded so far. It is read-only and
// idempotent.
func (db *DB) Snapshot(requestID string) (*request.ResultBatch, error) {
	batch := &request.ResultBatch{
		RequestID:    requestID,
		Queued:       []dataset.PhysicalProperty{},
		Estimated:    []request.EstimatedProperty{},
		Unsuccessful: []dataset.PhysicalProperty{},
		Exceptions:   []request.EvaluatorException{},
	}
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeMetaKey(requestID))
		if err == badger.ErrKeyNotFound {
			return ErrRequestNotFound

		} else if err != nil {
			return err
		}
		var meta requestMeta
		if err := item.Value(func(val []byte) error {
			meta, err = decodeMeta(val)
			return err
		}); err != nil {
			return err
		}

		for _, propID := range meta.PropertyOrder {
			key := encodePropertyKey(PropertyStatePrefix, requestID, propID)
			item, err := txn.Get(key)
			if err != nil {
				return fmt.Errorf("failed to read state of property %s: %w", propID, err)
			}
			var rec storedProperty
			if err := item.Value(func(val []byte) error {
				rec, err = decodeProperty(val)
				return err
			}); err != nil {
				return err
			}
			switch rec.State {
			case stateQueued:
				batch.Queued = append(batch.Queued, rec.Property)
			case stateEstimated:
				batch.Estimated = append(batch.Estimated, request.EstimatedProperty{
					PhysicalProperty:     rec.Property,
					EstimatedValue:       rec.EstimatedValue,
					EstimatedUncertainty: rec.EstimatedUncertainty,
					Layer:                rec.Layer,
				})
			case stateUnsuccessful:
				batch.Unsuccessful = append(batch.Unsuccessful, rec.Property)
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = encodeRequestPrefix(ExceptionPrefix, requestID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var exc request.EvaluatorException
			err := it.Item().Value(func(val []byte) error {
				exc, err = decodeException(val)
				return err
			})
			if err != nil {
				return err
			}
			batch.Exceptions = append(batch.Exceptions, exc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// PendingProperties lists the properties of a request still waiting
// for a terminal state, in submission order.
func (db *DB) PendingProperties(requestID string) ([]dataset.PhysicalProperty, error) {
	batch, err := db.Snapshot(requestID)
	if err != nil {
		return nil, err
	}
	return batch.Queued, nil
}

func (db *DB) resolve(
	requestID, propertyID string,
	apply func(rec *storedProperty),
) error {
	key := encodePropertyKey(PropertyStatePrefix, requestID, propertyID)
	return db.bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrRequestNotFound

		} else if err != nil {
			return err
		}
		var rec storedProperty
		if err := item.Value(func(val []byte) error {
			rec, err = decodeProperty(val)
			return err
		}); err != nil {
			return err
		}
		if rec.State.terminal() {
			return ErrAlreadyResolved
		}
		apply(&rec)
		recBytes, err := encodeProperty(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, recBytes)
	})
}

// ResolveEstimated moves a queued property to the estimated state.
func (db *DB) ResolveEstimated(
	requestID, propertyID string,
	value, uncertainty float64,
	layer string,
) error {
	return db.resolve(requestID, propertyID, func(rec *storedProperty) {
		rec.State = stateEstimated
		rec.EstimatedValue = value
		rec.EstimatedUncertainty = uncertainty
		rec.Layer = layer
	})
}

// ResolveUnsuccessful moves a queued property to the unsuccessful
// state and records the exception that caused it.
func (db *DB) ResolveUnsuccessful(
	requestID, propertyID string,
	exc request.EvaluatorException,
) error {
	if err := db.resolve(requestID, propertyID, func(rec *storedProperty) {
		rec.State = stateUnsuccessful
	}); err != nil {
		return err
	}
	excBytes, err := encodeException(exc)
	if err != nil {
		return err
	}
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(encodePropertyKey(ExceptionPrefix, requestID, propertyID), excBytes)
	})
}

func OpenDB(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(4)

	ans := &DB{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open request state database: %w", err)
	}
	ans.bdb = db
	return ans, nil
}

// OpenInMemoryDB opens a non-persistent variant of the database.
// It is intended for tests.
func OpenInMemoryDB() (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory request state database: %w", err)
	}
	return &DB{bdb: db}, nil
}
