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
package agent

import (
	"fmt"
)

// ErrModelCall represents a failed call to the language model.
type ErrModelCall struct {
	Msg       string
	Err       error
	Transient bool
}

// ErrToolLoop is returned when the model keeps requesting tools past the configured limit.
type ErrToolLoop struct {
	Limit int
}

// ErrCancelled represents errors when an operation is cancelled
type ErrCancelled struct {
	Msg string
	Err error
}

func (e *ErrModelCall) Error() string {
	return fmt.Sprintf("model call error: %s: %v", e.Msg, e.Err)
}

func (e *ErrModelCall) Unwrap() error {
	return e.Err
}

func (e *ErrToolLoop) Error() string {
	return fmt.Sprintf("model requested more than %d tool rounds without answering", e.Limit)
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("operation cancelled: %s: %v", e.Msg, e.Err)
}

func (e *ErrCancelled) Unwrap() error {
	return e.Err
}
