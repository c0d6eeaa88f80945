package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

const stateFormatVersionCurrent = 1

// ErrCorruptState is returned when a persisted state blob cannot be decoded.
var ErrCorruptState = errors.New("session: corrupt persisted state")

type envelope struct {
	Version int    `json:"version"`
	State   *State `json:"state"`
}

// Encode serializes the state as a versioned JSON document.
func Encode(s *State) (string, error) {
	data, err := json.Marshal(envelope{
		Version: stateFormatVersionCurrent,
		State:   s,
	})
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return string(data), nil
}

// Decode parses a document produced by [Encode]. Unknown versions are
// rejected rather than partially decoded.
func Decode(data string) (*State, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if env.Version != stateFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrCorruptState, env.Version)
	}
	if env.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrCorruptState)
	}
	return env.State, nil
}
