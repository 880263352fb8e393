// Package migrations embeds the desired-state SQL schema.
package migrations

import _ "embed"

// SchemaPath is the schema location relative to the repository root, used
// as the atlas desired state.
const SchemaPath = "migrations/schema.sql"

//go:embed schema.sql
var Schema string
