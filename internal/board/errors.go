package board

import "errors"

var (
	// ErrRoomNotFound means the whiteboard id is invalid
	ErrRoomNotFound = errors.New("whiteboard room not found")
	// ErrCapacityExceeded means the room participant ceiling was reached
	ErrCapacityExceeded = errors.New("room participant limit reached")
	// ErrRoomClosed means the room shut down while a submit was pending
	ErrRoomClosed = errors.New("room is shutting down")
	// ErrNoActiveGesture means a move/commit arrived with no gesture in progress
	ErrNoActiveGesture = errors.New("no active gesture")
)
