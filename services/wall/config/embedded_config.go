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
This bridge file embeds the default wall configuration so the binary
runs with sane limits when no external file is deployed. Every value
here can be overridden by RAMPART_CONFIG_PATH or the documented
environment variables.
*/

package config

import _ "embed"

//go:embed wall_config.yaml
var defaultConfigYAML []byte
