// Package confloader provides configuration loading mechanism.
//
// Loader layers configuration sources with koanf and unmarshals them into a
// typed struct whose current content acts as the defaults.
//
// Priority (highest to lowest):
//
//  1. Alias environment variables (flat names such as RATELIMIT_QUOTA)
//  2. Prefixed environment variables (SANDSTORE_TENANT_RATELIMIT_QUOTA)
//  3. Configuration file (YAML)
//  4. Default values
//
// Watcher reports changes to configuration files so that callers can call
// Loader.Reload and apply the settings that may change at runtime.
package confloader
