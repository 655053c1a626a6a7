//go:build tools

// Package tools pins the development tools: the goose CLI for managing migrations outside the
// server, swag for generating the OpenAPI docs from the handler annotations, and the linters.
package tools

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
	_ "github.com/securego/gosec/v2/cmd/gosec"
	_ "github.com/swaggo/swag/cmd/swag"
	_ "honnef.co/go/tools/cmd/staticcheck"
)
