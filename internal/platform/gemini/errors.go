package gemini

import "errors"

var (
	// ErrInvalidConfig is returned when the summarizer configuration is unusable.
	ErrInvalidConfig = errors.New("invalid summarizer configuration")

	// ErrInvalidResponse is returned when the model response has no usable text.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model refuses to answer on safety grounds.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned when every retry attempt failed.
	ErrTransientFailure = errors.New("transient error during summarization")
)
