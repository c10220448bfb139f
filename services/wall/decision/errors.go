// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import "errors"

var (
	// ErrUnknownRiskLevel indicates an unrecognized risk level name.
	ErrUnknownRiskLevel = errors.New("unknown risk level")

	// ErrInvalidTransition indicates an invalid validation state transition.
	ErrInvalidTransition = errors.New("invalid validation state transition")

	// ErrNilAction indicates a nil action was submitted for validation.
	ErrNilAction = errors.New("action must not be nil")

	// ErrResultFinalized indicates a mutation after Record() was taken.
	ErrResultFinalized = errors.New("result already finalized")
)
