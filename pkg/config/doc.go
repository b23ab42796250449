// Package config defines the Config struct enumerating every option
// the core recognizes, and loads it from YAML using gopkg.in/yaml.v3.
// The core itself never reads a file - only a host wrapper
// (cmd/fqstore) does - but the struct and its Load helper live here so
// any host can share one definition.
package config
