//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are invoked version-pinned through `go run` and do not need a
// global install; only their runtime libraries appear in go.mod.
package tools

// Development tools:
//
// MockGen - Mock generation for core interfaces
//   Invoke: go run go.uber.org/mock/mockgen@v0.6.0 (wired via go:generate)
//   Version: v0.6.0 (pinned 2025-03-01)
//   Docs: https://github.com/uber-go/mock
//   Regenerate: go generate ./internal/mocks
