package attendance

import "errors"

var (
	// ErrPersonNotFound means the register number has no roster entry.
	ErrPersonNotFound = errors.New("person not found")

	// ErrReviewNotFound means the pending review does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrBadImage means the capture payload could not be decoded as an image.
	ErrBadImage = errors.New("capture image undecodable")
)
