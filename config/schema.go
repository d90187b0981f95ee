package config

import _ "embed"

// Schema is the JSON schema the merged configuration map is validated
// against before it is unmarshalled.
//
//go:embed schema.json
var Schema []byte
