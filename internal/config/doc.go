// Package config loads, normalizes, and validates image-localizer settings.
//
// Values are layered: built-in defaults, then a TOML file, then a .env file
// in the working directory, then process environment variables. Command-line
// flags are applied by the caller on top of the result, followed by another
// call to Validate. API keys that are still missing after the environment
// pass are looked up through the auth package (GPG credential files).
package config
