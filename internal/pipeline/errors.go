package pipeline

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	// Inference errors, reported per frame.
	ErrDimensionMismatch = errors.ErrorCode("pipeline_dimension_mismatch")
	ErrModelUnavailable  = errors.ErrorCode("pipeline_model_unavailable")
	ErrClassOutOfRange   = errors.ErrorCode("pipeline_class_out_of_range")

	// Startup errors, fatal before the loop starts.
	ErrArtifactUnreadable = errors.ErrorCode("pipeline_artifact_unreadable")
	ErrArtifactInvalid    = errors.ErrorCode("pipeline_artifact_invalid")
)
