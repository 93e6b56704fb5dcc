// Package config loads, normalizes, and validates earworm configuration.
//
// Configuration lives in a TOML file (default ~/.config/earworm/config.toml,
// falling back to ./earworm.toml). A missing file is not an error: Load
// returns defaults. Decoding overlays the file on Default(), then paths are
// expanded and the result validated.
//
// The rule table is not part of this file; [paths].rules points at a CUE
// document loaded by package rules.
package config
