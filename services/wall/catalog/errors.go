// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import "errors"

var (
	// ErrUnknownFamily indicates an unrecognized family name.
	ErrUnknownFamily = errors.New("unknown action family")

	// ErrInvalidSpec indicates a malformed catalog registration.
	ErrInvalidSpec = errors.New("invalid action spec")

	// ErrNotRegistered indicates an action name absent from the catalog.
	ErrNotRegistered = errors.New("action not registered")
)
