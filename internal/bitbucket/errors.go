package bitbucket

import (
	"errors"
	"fmt"
)

// ErrAuthRetryExhausted is returned by Client.Get when a request fails on
// a TLS/auth-class transport error even after the token has been
// re-acquired. Exactly one re-acquisition is attempted per call.
var ErrAuthRetryExhausted = errors.New("bitbucket request failed after token re-acquisition")

// AuthError indicates that the OAuth2 client-credentials exchange could
// not produce an access token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to retrieve access token: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestFailedError indicates a Bitbucket request completed with a
// status other than 200.
type RequestFailedError struct {
	Status int
	Reason string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request status %d: %s", e.Status, e.Reason)
}

// FileLoadError indicates a fetched file could not be decoded into a
// usable structured value. The transport reason, if any, is deliberately
// not carried: callers only need to know the file is unusable.
type FileLoadError struct {
	Project string
	Slug    string
	Path    string
	Err     error
}

func (e *FileLoadError) Error() string {
	return fmt.Sprintf("failed to load file %s/%s/%s: %v", e.Project, e.Slug, e.Path, e.Err)
}

func (e *FileLoadError) Unwrap() error {
	return e.Err
}
