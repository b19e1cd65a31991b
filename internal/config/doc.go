// Package config handles configuration loading for wrenchd.
//
// Configuration is YAML with ${VAR_NAME} environment expansion and
// time.ParseDuration syntax for durations:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	data:
//	  dir: "/var/lib/wrenchd"
//	  admin_store: "platform.db"
//	  default_tenant_store: "default.db"
//
//	auth:
//	  jwt_secret: "${WRENCH_JWT_SECRET}"
//	  token_ttl: "12h"
//
//	retention:
//	  days: 30
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// The retention window additionally honors the WRENCH_RETENTION_DAYS
// environment variable, which the out-of-band purge tool uses to override
// the configured value for a single run.
package config
