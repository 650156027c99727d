// Package syncer keeps installed pools in step with a directory of pool
// definition files, typically a checked-out content repository.
//
// Supported formats, chosen by extension:
//
//	.toml          TOML
//	.yaml, .yml    YAML
//	.json          JSON
//	.cue           CUE, unified with the embedded #Pool schema
//
// Unknown fields are rejected in every format. A file whose canonical
// content hash equals the installed version is skipped without touching the
// pool store. Files are never a reason to remove a pool: deleting a file
// leaves its last installed version in place.
package syncer
