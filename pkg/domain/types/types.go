package types

// Version is the application version reported by the CLI and /health
var Version = "dev"

// Service is the service name used in logs and health responses
const Service = "refhook"
