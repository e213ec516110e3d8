// Command marketpulsectl submits and inspects marketpulse jobs and streams
// answers from the command line.
//
// Settings are read from ~/.config/marketpulse/ctl.toml and can be
// overridden with flags or MARKETPULSE_* environment variables:
//
//	server = "http://localhost:8080"
//	token = "eyJhbGciOi..."
//	owner = "alice"
//	owner_header = "X-Owner-ID"
package main
