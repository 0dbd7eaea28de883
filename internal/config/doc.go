// Package config handles configuration loading for the mailbox agent service.
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
//	agent:
//	  api_key: "${AGENTS_API_KEY}"
//	tools:
//	  function_key: "${AZURE_FUNCTION_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  poll_interval: "500ms"
//	  run_timeout: "2m"
//	tools:
//	  timeout: "10s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  cookie_secret: "${SESSION_COOKIE_SECRET}"
//
// Conversation service and agent definition:
//
//	agent:
//	  endpoint: "${PROJECT_ENDPOINT}"
//	  api_key: "${AGENTS_API_KEY}"
//	  model: "${MODEL_DEPLOYMENT_NAME}"
//	  name: "mailbox-agent"
//	  instructions: "You are a technical support agent..."
//
// Tool endpoints:
//
//	tools:
//	  mailbox_url: "https://example.azurewebsites.net/api/mbxtrigger"
//	  message_trace_url: "https://example.azurewebsites.net/api/MessageTrace"
//	  function_key: "${AZURE_FUNCTION_KEY}"
//
// Chart rendering service:
//
//	chart:
//	  enabled: true
//	  url: "http://localhost:8000/generate-chart"
//
// Session store:
//
//	sessions:
//	  backend: "sqlite"   # memory, sqlite
//	  path: "/var/lib/mailbox-agent/sessions.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
