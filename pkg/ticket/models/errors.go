package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidStation    = errors.New("invalid station")
	ErrStationNotFound   = errors.New("station not found")
	ErrMalformedResponse = errors.New("malformed response")
	ErrConnection        = errors.New("connection error")
)

// InvalidStationError is returned when a station name cannot be resolved,
// even after the fuzzy fallback.
type InvalidStationError struct {
	Name        string
	Suggestions []string
}

func (e *InvalidStationError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("invalid station %q", e.Name)
	}
	return fmt.Sprintf("invalid station %q (did you mean: %s)", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *InvalidStationError) Is(target error) bool {
	return target == ErrInvalidStation
}

// ConnectionError is surfaced once a network operation exhausted its retries.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: connection failed", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// EnrichmentError describes a stop lookup that failed for one record.
type EnrichmentError struct {
	TrainNo   string
	TrainCode string
	Err       error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enriching %s (%s): %v", e.TrainCode, e.TrainNo, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}
