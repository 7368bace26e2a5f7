// Package cmd implements the httpvcr CLI commands using Cobra.
//
// Available commands:
//   - proxy: Run a recording reverse proxy in front of an API
//   - match: Find the recorded request closest to a missing one
//   - verify: Validate fixture metadata
//   - stats: Summarize a fixture tree
//   - prune: Remove fixtures that were not used recently
//   - inspect: Print fixture metadata
//   - journal: Show fixture usage recorded by the proxy
//   - init: Create a config file
//   - version: Show httpvcr version information
//
// Settings come from the config file, then the environment (VCR_MODE,
// VCR_FIXTURE_DIR, optionally from a .env file), then flags.
package cmd
