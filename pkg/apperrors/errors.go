package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyDataset        = errors.New("dataset is empty")
	ErrColumnNotFound      = errors.New("column not found in dataset")
	ErrInvalidSamplingPlan = errors.New("invalid sampling plan")
	ErrDecisionsPending    = errors.New("pending decisions must be resolved before bulk processing")
	ErrNoAnswerPort        = errors.New("no answer port configured")
	ErrRunCancelled        = errors.New("run cancelled")
	ErrUnsafeIdentifier    = errors.New("identifier failed safety validation")
	ErrUnsupportedSource   = errors.New("unsupported datasource type")
)
