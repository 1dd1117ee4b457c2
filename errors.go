package contractgraph

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("contractgraph: invalid configuration")

	// ErrNoDocuments is returned when a batch contains nothing to ingest.
	ErrNoDocuments = errors.New("contractgraph: no documents to ingest")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("contractgraph: engine is closed")

	// ErrModelUnreachable is returned when every document in a batch failed
	// because the generative model could not be reached.
	ErrModelUnreachable = errors.New("contractgraph: model unreachable")

	// ErrSinkUnreachable is returned when the configured graph database or
	// snapshot store cannot be opened.
	ErrSinkUnreachable = errors.New("contractgraph: storage unreachable")
)
