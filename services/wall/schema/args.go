// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"

	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// checkArgs enforces the registered argument schema. Every violation is
// collected; the caller sees all of them in one pass, not just the first.
func checkArgs(spec *catalog.ActionSpec, action *decision.Action, result *decision.Result) {
	names := make([]string, 0, len(spec.Args))
	for name := range spec.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		argSpec := spec.Args[name]

		value, present := action.Args[name]
		if !present {
			if argSpec.Required {
				result.AddError(decision.StageSchema, CodeInvalidArgument,
					fmt.Sprintf("required argument %q is missing", name),
					map[string]any{"argument": name})
			}
			continue
		}

		checkArgValue(name, argSpec, value, result)
	}
}

// checkArgValue enforces one argument's type, enum, range, and length rules.
func checkArgValue(name string, argSpec catalog.ArgSpec, value any, result *decision.Result) {
	if !typeMatches(argSpec.Type, value) {
		result.AddError(decision.StageSchema, CodeInvalidArgument,
			fmt.Sprintf("argument %q must be %s, got %s", name, argSpec.Type, kindName(value)),
			map[string]any{
				"argument": name,
				"expected": string(argSpec.Type),
				"got":      kindName(value),
			})
		// The remaining rules assume a value of the right type.
		return
	}

	switch argSpec.Type {
	case catalog.ArgString:
		s := value.(string)
		if len(argSpec.Enum) > 0 && !slices.Contains(argSpec.Enum, s) {
			result.AddError(decision.StageSchema, CodeInvalidArgument,
				fmt.Sprintf("argument %q must be one of %v", name, argSpec.Enum),
				map[string]any{"argument": name, "allowed": argSpec.Enum, "got": s})
		}
		if argSpec.MaxLen > 0 && len(s) > argSpec.MaxLen {
			result.AddError(decision.StageSchema, CodeInvalidArgument,
				fmt.Sprintf("argument %q exceeds %d bytes", name, argSpec.MaxLen),
				map[string]any{"argument": name, "max_len": argSpec.MaxLen, "got_len": len(s)})
		}

	case catalog.ArgInt, catalog.ArgFloat:
		n, _ := asFloat(value)
		if argSpec.Min != nil && n < *argSpec.Min {
			result.AddError(decision.StageSchema, CodeInvalidArgument,
				fmt.Sprintf("argument %q below minimum %v", name, *argSpec.Min),
				map[string]any{"argument": name, "min": *argSpec.Min, "got": n})
		}
		if argSpec.Max != nil && n > *argSpec.Max {
			result.AddError(decision.StageSchema, CodeInvalidArgument,
				fmt.Sprintf("argument %q above maximum %v", name, *argSpec.Max),
				map[string]any{"argument": name, "max": *argSpec.Max, "got": n})
		}
	}
}

// typeMatches reports whether a decoded value satisfies the declared type.
// Values arrive through encoding/json, so numbers are usually float64 and
// integers must accept a whole-valued float.
func typeMatches(argType catalog.ArgType, value any) bool {
	switch argType {
	case catalog.ArgString:
		_, ok := value.(string)
		return ok

	case catalog.ArgBool:
		_, ok := value.(bool)
		return ok

	case catalog.ArgInt:
		n, ok := asFloat(value)
		if !ok {
			return false
		}
		return n == math.Trunc(n)

	case catalog.ArgFloat:
		_, ok := asFloat(value)
		return ok

	case catalog.ArgList:
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Slice

	case catalog.ArgMap:
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Map

	default:
		return false
	}
}

// asFloat extracts a numeric value from the decoded forms JSON and YAML
// produce.
func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// kindName names a value's type for finding messages.
func kindName(value any) string {
	if value == nil {
		return "null"
	}
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32, json.Number:
		return "number"
	case int, int32, int64, uint, uint64:
		return "number"
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice:
		return "list"
	case reflect.Map:
		return "map"
	default:
		return fmt.Sprintf("%T", value)
	}
}
