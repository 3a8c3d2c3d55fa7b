// Package parser extracts module specifiers from JavaScript and TypeScript
// source text.
//
// Extraction is pattern based rather than a real lexer. Callers depend on the
// Extractor interface, which Parser implements.
//
// # Basic Usage
//
//	p := parser.New()
//	deps := p.Extract(`import a from "a"; require("./b");`)
//	// deps == []string{"./b", "a"}
//
// # Recognized Forms
//
// Rules are applied in this order to the comment-stripped text:
//   - import ... from "x" and side-effect import "x"
//   - export ... from "x"
//   - import("x"), not preceded by "."
//   - require("x"), not preceded by "."
//   - require.requireActual/requireMock, jest.requireActual/requireMock/genMockFromModule
//
// Quotes may be ', " or `, and must be the same on both sides.
// "import type" and "export type" clauses are skipped.
//
// # Comments
//
// Block comments and then line comments are removed before matching, so
// commented-out statements are never reported. A "//" inside a string literal
// is treated as a comment as well.
//
// # Output
//
// The result is sorted lexicographically with duplicates removed. It is never
// nil.
package parser
