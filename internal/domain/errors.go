package domain

import "errors"

var (
	// ErrConfiguration reports that the embedding model could not be loaded.
	ErrConfiguration = errors.New("configuration error")

	// ErrCorpus reports that no indexable text was available.
	ErrCorpus = errors.New("no indexable content")

	// ErrDimensionMismatch reports vectors whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPersistence reports that the index artifact could not be written.
	ErrPersistence = errors.New("index persistence failed")

	// ErrIndexAbsent reports a missing, partial or unreadable index artifact.
	ErrIndexAbsent = errors.New("index artifact absent")

	ErrInvalidConfig = errors.New("invalid configuration")
)
