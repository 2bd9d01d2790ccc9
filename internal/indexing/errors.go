package indexing

import (
	"errors"
	"fmt"
)

var (
	ErrReindexInProgress = errors.New("reindex already in progress")
	ErrNoContent         = errors.New("no content to index")
)

type Stage string

const (
	StageFetch  Stage = "fetch"
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
)

// StageError tags a pipeline failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
