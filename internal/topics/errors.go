package topics

import "errors"

var (
	// ErrNoRelevantTopics ends a run whose filter stage kept nothing.
	ErrNoRelevantTopics = errors.New("no Premier League topics found")

	errNoOracle = errors.New("oracle not configured")
)
