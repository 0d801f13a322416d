//go:build tools
// +build tools

// Package tchat tracks tool dependencies invoked through go generate
// (mockgen for internal/chat/mocks) so go.mod and go.sum stay in sync.
package tchat

import (
	_ "go.uber.org/mock/mockgen"
)
