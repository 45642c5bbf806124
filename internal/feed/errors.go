package feed

import "errors"

// ErrNoAudio marks a feed whose latest entry carries no qualifying audio
// enclosure. Non-fatal to a bulletin run.
var ErrNoAudio = errors.New("no audio enclosure found")

// FeedError wraps any failure to resolve a feed: unreachable, unparseable,
// empty, or missing audio.
type FeedError struct {
	URL string
	Err error
}

func (e *FeedError) Error() string {
	return "feed " + e.URL + ": " + e.Err.Error()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}
