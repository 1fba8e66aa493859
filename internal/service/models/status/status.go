package status

import "time"

// ApplicationStatus is a successful status check result.
type ApplicationStatus struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

// Response is the answer of a single status call.
// Exactly one of Success, RetryAfter or Failure is set.
type Response struct {
	Success    *ApplicationStatus
	RetryAfter *time.Duration
	Failure    error
}

// Succeeded builds a successful response.
func Succeeded(id, status string) Response {
	return Response{Success: &ApplicationStatus{ApplicationID: id, Status: status}}
}

// RetryLater builds a response asking the caller to come back after delay.
func RetryLater(delay time.Duration) Response {
	return Response{RetryAfter: &delay}
}

// Failed builds a failed response.
func Failed(err error) Response {
	return Response{Failure: err}
}

// Failed reports whether the call failed.
func (r Response) Failed() bool {
	return r.Failure != nil || (r.Success == nil && r.RetryAfter == nil)
}
