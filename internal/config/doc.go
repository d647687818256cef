// Package config handles configuration loading for threadwell.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${THREADWELL_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  heartbeat_interval: "30s"
//	  write_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and live sync
//
// Database:
//
//	database:
//	  path: "/var/lib/threadwell/threadwell.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${THREADWELL_JWT_SECRET}"
//
// Live sync timing:
//
//	sync:
//	  heartbeat_interval: "30s"
//	  write_timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/threadwell/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
