// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Variables may come from the process environment or from an optional .env file
// next to the configuration, which never overrides variables already set.
package config
