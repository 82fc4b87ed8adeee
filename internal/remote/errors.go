package remote

import (
	"errors"
	"fmt"
)

// Rejection is a terminal 4xx refusal. The queue dequeues the operation,
// records the reason and moves on; everything else is transient and stays
// queued for the next flush.
type Rejection struct {
	StatusCode int
	Reason     string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected: http %d: %s", r.StatusCode, r.Reason)
}

// AsRejection unwraps err down to a *Rejection if there is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
