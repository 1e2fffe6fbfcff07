package mediawiki

import "fmt"

// APIError is an error object returned by the Action API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki: %s: %s", e.Code, e.Info)
}

// LoginError is a rejected bot login.
type LoginError struct {
	Result string
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("mediawiki: login %s: %s", e.Result, e.Reason)
}
