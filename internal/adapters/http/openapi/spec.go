// Package openapi embeds the public API document used for request validation.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Document []byte
