// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so secrets such as the database password never need to be written to disk.
// See configs/sessiond.example.yaml for the full schema.
//
// Snapshot is a separate flat key/value document holding the session settings
// that callers may persist between runs. It never carries secrets.
package config
