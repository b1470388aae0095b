package transport

import (
	"errors"
	"fmt"

	auth "github.com/goliatone/go-dashboard-auth"
	goerrors "github.com/goliatone/go-errors"
)

// APIError captures a non success answer from the remote API.
type APIError struct {
	Operation   string
	Status      int
	RequestID   string
	Code        string
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}

	scope := "api"
	if e.Operation != "" {
		scope = e.Operation
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s failed with status %d", scope, e.Status)
	}
	return fmt.Sprintf("%s failed", scope)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *APIError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.RequestID != "" {
		meta["request_id"] = e.RequestID
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	return meta
}

// errorBody is the error envelope the remote API answers with.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func wrapAPIError(base *goerrors.Error, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		for k, v := range apiErr.Metadata() {
			meta[k] = v
		}
	} else if err != nil {
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// IsRejected reports whether err is the remote API refusing the presented
// credential.
func IsRejected(err error) bool {
	return auth.IsUnauthenticated(err)
}
