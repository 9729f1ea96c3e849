// Package configs embeds the default source list and keyword taxonomy.
package configs

import _ "embed"

//go:embed sources.yaml
var Sources []byte

//go:embed keywords.yaml
var Keywords []byte
