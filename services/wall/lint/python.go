// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// pythonAnalyzer inspects python snippets through their syntax tree.
//
// Description:
//
//	The tree-sitter parse means a forbidden name inside a comment or a
//	string literal does not trigger a finding; only real imports and real
//	call expressions do. In strict mode an unparsable snippet is itself a
//	hard block, since code that cannot be parsed cannot be proven safe.
//	Fragment mode (used for patch hunks, which are rarely complete
//	programs) skips that check and reports only what the partial tree
//	reveals.
//
// Thread Safety: safe for concurrent use; a parser is created per call.
type pythonAnalyzer struct{}

// analyze parses source and records findings on the result. The error
// return means the parse itself failed (cancellation, internal fault), not
// that the code is dangerous.
func (a pythonAnalyzer) analyze(ctx context.Context, source []byte, strict bool, result *decision.Result) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("parsing python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()

	if strict && hasSyntaxError(root) {
		line := 0
		if errNode := firstErrorNode(root); errNode != nil {
			line = int(errNode.StartPoint().Row) + 1
		}
		result.AddError(decision.StageLinter, CodeUnparsableCode,
			"python snippet does not parse; unparsable code cannot be proven safe",
			map[string]any{"language": "python", "line": line, "pattern_version": PatternVersion})
		return nil
	}

	a.walk(root, source, result)
	return nil
}

// walk recursively visits the tree, dispatching on node type.
func (a pythonAnalyzer) walk(node *sitter.Node, source []byte, result *decision.Result) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement", "import_from_statement":
		a.checkImport(node, source, result)
	case "call":
		a.checkCall(node, source, result)
	}

	for i := uint32(0); i < node.ChildCount(); i++ {
		a.walk(node.Child(int(i)), source, result)
	}
}

// checkImport blocks imports whose root module grants a forbidden
// capability. `import os.path` and `from os import path` both resolve to
// root module "os".
func (a pythonAnalyzer) checkImport(node *sitter.Node, source []byte, result *decision.Result) {
	for _, module := range importedModules(node, source) {
		root := module
		if idx := strings.Index(module, "."); idx >= 0 {
			root = module[:idx]
		}

		capability, forbidden := dangerousPythonModules[root]
		if !forbidden {
			continue
		}

		result.AddError(decision.StageLinter, CodeForbiddenImport,
			fmt.Sprintf("import of %q grants %s", module, capability),
			map[string]any{
				"language":        "python",
				"module":          module,
				"line":            int(node.StartPoint().Row) + 1,
				"pattern_version": PatternVersion,
			})
	}
}

// checkCall blocks code-execution builtins and warns on reflective access.
func (a pythonAnalyzer) checkCall(node *sitter.Node, source []byte, result *decision.Result) {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return
	}

	var name string
	switch funcNode.Type() {
	case "identifier", "attribute":
		name = string(source[funcNode.StartByte():funcNode.EndByte()])
	default:
		return
	}

	// Attribute calls compare on their last segment, so obj.getattr-style
	// shadowing still surfaces.
	base := name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		base = name[idx+1:]
	}
	line := int(node.StartPoint().Row) + 1

	if why, blocked := dangerousPythonCalls[base]; blocked {
		result.AddError(decision.StageLinter, CodeForbiddenCall,
			fmt.Sprintf("call to %s %s", name, why),
			map[string]any{
				"language":        "python",
				"call":            name,
				"line":            line,
				"pattern_version": PatternVersion,
			})
		return
	}

	if why, reflective := reflectivePythonCalls[base]; reflective {
		result.AddWarning(decision.StageLinter, CodeDynamicAttribute,
			fmt.Sprintf("call to %s is %s, which defeats static review", name, why),
			decision.RiskReview,
			map[string]any{
				"language":        "python",
				"call":            name,
				"line":            line,
				"pattern_version": PatternVersion,
			})
	}
}

// importedModules extracts the dotted module names an import statement
// brings in. `import a, b as c` yields [a b]; `from x.y import z` yields
// [x.y]; relative imports yield their leading-dot form and match nothing.
func importedModules(node *sitter.Node, source []byte) []string {
	text := func(n *sitter.Node) string {
		return string(source[n.StartByte():n.EndByte()])
	}

	var modules []string
	switch node.Type() {
	case "import_statement":
		for i := uint32(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(int(i))
			switch child.Type() {
			case "dotted_name":
				modules = append(modules, text(child))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					modules = append(modules, text(name))
				}
			}
		}
	case "import_from_statement":
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			modules = append(modules, text(mod))
		}
	}
	return modules
}

// hasSyntaxError reports whether the tree contains error or missing nodes.
func hasSyntaxError(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	if node.IsError() || node.IsMissing() {
		return true
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if hasSyntaxError(node.Child(int(i))) {
			return true
		}
	}
	return false
}

// firstErrorNode returns the first error or missing node, for line
// reporting.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(int(i))); found != nil {
			return found
		}
	}
	return nil
}
