package gnsslink

import "errors"

var (
	// ErrTransportOpen means the serial device could not be opened (missing
	// or busy). Fatal to Connect.
	ErrTransportOpen = errors.New("failed to open serial transport")

	// ErrAckTimeout means a command was written but no acknowledgment token
	// arrived before the deadline.
	ErrAckTimeout = errors.New("timed out waiting for acknowledgment")

	// ErrNoBaudrate means no candidate speed produced an acknowledgment.
	ErrNoBaudrate = errors.New("no valid baud rate found")

	// ErrSwitchRollback means the receiver did not answer at the requested
	// speed and the link was returned to the previous one. The link is still
	// usable.
	ErrSwitchRollback = errors.New("baud rate change rolled back")

	// ErrNotOpen means the operation needs an open connection.
	ErrNotOpen = errors.New("connection is not open")

	// ErrInvalidCommand means the command text could not be interpreted.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrWriteFailed means the transport accepted fewer bytes than written.
	ErrWriteFailed = errors.New("failed to write to serial port")
)
