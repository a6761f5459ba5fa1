/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package warehouse

import "errors"

// APIError is a fault reported by the warehouse while running a query: bad SQL,
// permission denied, quota exceeded and the like. Message is the warehouse's own text.
type APIError struct {
	Backend string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError wraps err, keeping its message verbatim.
func NewAPIError(backend string, err error) *APIError {
	return NewAPIErrorMessage(backend, err.Error(), err)
}

func NewAPIErrorMessage(backend, message string, err error) *APIError {
	return &APIError{Backend: backend, Message: message, Err: err}
}

// AsAPIError reports whether err is, or wraps, an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
