package store

import (
	"fmt"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/request"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	RequestMetaPrefix   byte = 0x00 // per-request metadata
	PropertyStatePrefix byte = 0x01 // per-property state records
	ExceptionPrefix     byte = 0x02 // per-property evaluator exceptions
)

// keySeparator splits the request id from the property id inside
// a key. Request ids are UUIDs and property ids are validated to be
// non-empty, so the separator cannot collide with either.
const keySeparator byte = 0x00

type propertyState uint8

const (
	stateQueued propertyState = iota
	stateEstimated
	stateUnsuccessful
)

func (st propertyState) terminal() bool {
	return st == stateEstimated || st == stateUnsuccessful
}

// requestMeta is stored once per request. PropertyOrder preserves the
// submission order of property ids so snapshots can reproduce it.
// Force field and options are carried opaquely in their wire (JSON)
// form - the store does not interpret them.
type requestMeta struct {
	SubmittedAt    int64    `msgpack:"submittedAt"`
	PropertyOrder  []string `msgpack:"propertyOrder"`
	ForceFieldJSON []byte   `msgpack:"forceFieldJson"`
	OptionsJSON    []byte   `msgpack:"optionsJson"`
}

type storedProperty struct {
	State                propertyState            `msgpack:"state"`
	Property             dataset.PhysicalProperty `msgpack:"property"`
	EstimatedValue       float64                  `msgpack:"estimatedValue"`
	EstimatedUncertainty float64                  `msgpack:"estimatedUncertainty"`
	Layer                string                   `msgpack:"layer"`
}

func encodeMetaKey(requestID string) []byte {
	key := make([]byte, 1+len(requestID))
	key[0] = RequestMetaPrefix
	copy(key[1:], requestID)
	return key
}

func encodePropertyKey(prefix byte, requestID, propertyID string) []byte {
	key := make([]byte, 1+len(requestID)+1+len(propertyID))
	key[0] = prefix
	copy(key[1:], requestID)
	key[1+len(requestID)] = keySeparator
	copy(key[2+len(requestID):], propertyID)
	return key
}

func encodeRequestPrefix(prefix byte, requestID string) []byte {
	key := make([]byte, 1+len(requestID)+1)
	key[0] = prefix
	copy(key[1:], requestID)
	key[1+len(requestID)] = keySeparator
	return key
}

func encodeMeta(meta requestMeta) ([]byte, error) {
	ans, err := msgpack.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request meta: %w", err)
	}
	return ans, nil
}

func decodeMeta(data []byte) (requestMeta, error) {
	var ans requestMeta
	if err := msgpack.Unmarshal(data, &ans); err != nil {
		return requestMeta{}, fmt.Errorf("failed to decode request meta: %w", err)
	}
	return ans, nil
}

func encodeProperty(rec storedProperty) ([]byte, error) {
	ans, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property record: %w", err)
	}
	return ans, nil
}

func decodeProperty(data []byte) (storedProperty, error) {
	var ans storedProperty
	if err := msgpack.Unmarshal(data, &ans); err != nil {
		return storedProperty{}, fmt.Errorf("failed to decode property record: %w", err)
	}
	return ans, nil
}

func encodeException(exc request.EvaluatorException) ([]byte, error) {
	ans, err := msgpack.Marshal(exc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exception: %w", err)
	}
	return ans, nil
}

func decodeException(data []byte) (request.EvaluatorException, error) {
	var ans request.EvaluatorException
	if err := msgpack.Unmarshal(data, &ans); err != nil {
		return request.EvaluatorException{}, fmt.Errorf("failed to decode exception: %w", err)
	}
	return ans, nil
}
