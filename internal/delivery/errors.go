package delivery

import "fmt"

// Error describes one failed delivery attempt. It is recorded on the
// Delivery and never propagated past the Processor.
type Error struct {
	EndpointID string
	EventID    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery to %s for %s failed with status %d", e.EndpointID, e.EventID, e.StatusCode)
	}
	return fmt.Sprintf("delivery to %s for %s failed: %v", e.EndpointID, e.EventID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
