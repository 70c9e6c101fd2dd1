// Package schemas embeds the JSON Schemas for textplay's YAML files.
package schemas

import _ "embed"

//go:embed config.schema.json
var ConfigSchemaJSON string

//go:embed script.schema.json
var ScriptSchemaJSON string
