// Package config loads tradefeed configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as the provider API key stay out of the file. A dotenv file
// may be loaded first with LoadEnvFile.
package config
