// Package cmd implements the relay CLI commands using Cobra.
//
// Available commands:
//   - send: Compose and send one request from a slot
//   - history: List, show, restore, resend and summarise finished requests
//   - session: Manage and send saved composer tabs, or watch the session file
//   - import: Turn curl commands, Postman collections or Insomnia exports into saved tabs
//   - init: Write a starter config and session
//   - completion: Generate shell completion scripts
//   - version: Show relay version information
//
// Configuration is read from a .relay.yaml or relay.config.json file, then
// RELAY_* environment variables, then flags.
package cmd
