package store

// Store defines the interface for frame persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a frame doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveFrame atomically stores raw 8-bit samples under name. Names
	// ending in .zst are written zstd-compressed.
	SaveFrame(name string, raw []byte) error

	// LoadFrame returns the decompressed samples of name.
	LoadFrame(name string) ([]byte, error)

	// ListFrames returns metadata for all stored frames.
	ListFrames() ([]FrameInfo, error)

	// DeleteFrame removes the frame.
	DeleteFrame(name string) error
}

// ErrNotFound is returned when a requested frame does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing frame.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return "frame not found: " + e.Name
	}
	return "frame not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
