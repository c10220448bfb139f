// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file serves as the bridge between the build system and the runtime logic. It utilizes the Go
embed package to bake the action_catalog.yaml file directly into the compiled binary. This ensures
that the shipped catalog travels with the executable and cannot be silently emptied on the host.
*/

package catalog

import (
	_ "embed"
)

// defaultCatalogYAML holds the raw byte content of the 'action_catalog.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed' directive. Deployments
// that need a different catalog override it with an external file (RAMPART_CATALOG_PATH);
// the embedded copy remains the fallback when the override is missing or malformed.
//
//go:embed action_catalog.yaml
var defaultCatalogYAML []byte
