package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time. It sits
// below any external config file, environment variable and flag.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
