// Package config loads and validates the replication core's top-level
// configuration: where it stores data, which endpoints it binds, and which
// optional discovery/transport mechanisms are enabled. Values outside this
// surface (password-derived keys, the discovery and transport
// implementations themselves) are accepted as already-opaque inputs by the
// packages that need them and are not modeled here.
package config
