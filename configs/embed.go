// Package configs embeds the configuration templates written by
// `amanbib config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/amanbib/config.yaml)
//  3. Project config (.amanbib.yaml next to the library)
//  4. Environment variables (AMANBIB_*)
package configs

import _ "embed"

// UserConfigTemplate holds machine-level settings shared by every library.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate holds settings for one library, usually kept
// alongside the library file.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
