//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// mockgen is invoked through `go generate` from the contract package;
// importing it here keeps its version pinned in go.mod.
package quorum

import (
	_ "go.uber.org/mock/mockgen"
)
