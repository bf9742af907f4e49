package ragpipe

import "errors"

var (
	// ErrInvalidUserID is returned when user_id is empty or too long.
	ErrInvalidUserID = errors.New("ragpipe: invalid user_id")

	// ErrInvalidSessionID is returned when session_id is empty or too long.
	ErrInvalidSessionID = errors.New("ragpipe: invalid session_id")

	// ErrInvalidQuery is returned when the query is empty or exceeds
	// the length limit.
	ErrInvalidQuery = errors.New("ragpipe: invalid query")

	// ErrInvalidTopK is returned when top_k falls outside 1..50.
	ErrInvalidTopK = errors.New("ragpipe: invalid top_k")

	// ErrRetrievalFailed is returned when every retrieval side failed
	// and no answer can be grounded.
	ErrRetrievalFailed = errors.New("ragpipe: retrieval failed")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("ragpipe: engine is closed")
)
