// Package griderr defines the error taxonomy shared by the grid codecs,
// the collocation engine and the conversion job.
//
// Every package returns (or wraps with fmt.Errorf("...: %w", ...)) one of
// the sentinels below so callers can classify failures with errors.Is.
package griderr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports invalid parameters: tile size, covariance
	// length scale, grid geometry or job configuration.
	ErrConfiguration = errors.New("gridfiles: invalid configuration")

	// ErrFormat reports a truncated or malformed file or metadata block.
	ErrFormat = errors.New("gridfiles: malformed data")

	// ErrNumerical reports a singular or otherwise unusable linear system.
	ErrNumerical = errors.New("gridfiles: numerical failure")

	// ErrDomain reports an argument outside the domain of a function.
	ErrDomain = errors.New("gridfiles: argument out of domain")

	// ErrIO reports a missing or unreadable file.
	ErrIO = errors.New("gridfiles: i/o failure")
)

// Stage names a step of a conversion job.
type Stage string

const (
	StageIngestion  Stage = "ingestion"
	StageEstimation Stage = "estimation"
	StagePrediction Stage = "prediction"
	StageEncoding   Stage = "encoding"
)

// StageError attributes a failure to the job stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with the given stage. A nil err stays nil.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
