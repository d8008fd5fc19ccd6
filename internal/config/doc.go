// Package config loads the crossbot configuration file (JSON or YAML),
// overlays secrets from the environment, validates it, and watches the file
// for changes in watch mode.
package config
