package connectivity

import (
	"fmt"
	"net/http"
	"time"
)

// ErrCallTimeout reports a call cut off by WithTimeout.
type ErrCallTimeout struct {
	Service string
	After   time.Duration
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("connectivity: %s did not answer within %s", e.Service, e.After)
}

// ErrCircuitOpen reports a call refused because the remote kept failing.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: %s unavailable (circuit open)", e.Service)
}

// Permanent: retrying before the cooldown is refused again.
func (e *ErrCircuitOpen) Permanent() bool { return true }

// ErrHTTPStatus reports a non-2xx answer. Body holds the start of the
// response for the logs.
type ErrHTTPStatus struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("connectivity: %s answered %d %s: %s", e.Endpoint, e.Status, http.StatusText(e.Status), e.Body)
}

// Permanent reports client errors other than 408 and 429: sending the
// same request again gets the same answer.
func (e *ErrHTTPStatus) Permanent() bool {
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// permanent is implemented by errors WithRetry gives up on at once.
type permanent interface {
	Permanent() bool
}
