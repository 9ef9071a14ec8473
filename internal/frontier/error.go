package frontier

var _ error = (*Error)(nil)

// Error is a frontier error.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCapacityExceeded indicates that a batch does not fit into the remaining capacity of the frontier.
	ErrCapacityExceeded = Error("capacity exceeded")
	// ErrClosed indicates that the frontier is closed.
	ErrClosed = Error("frontier closed")
)
