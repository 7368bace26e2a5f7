// Package config holds the configuration context of the interceptor.
//
// It provides:
//   - Settings, the explicit, resettable configuration object
//   - Options, a partial configuration merged by Settings.Configure
//   - Loading filters and options from .httpvcr.yaml files
//   - Watching a config file and re-applying it on change
package config
