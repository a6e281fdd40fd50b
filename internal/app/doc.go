// Package app wires the BMI dashboard together and manages its lifecycle.
//
// # Initialization Flow
//
//  1. Build the logger and OpenTelemetry providers from the config
//  2. Start the websocket hub
//  3. Open the sqlite selection store and the AMQP publisher when enabled
//  4. Create the dashboard and health services
//  5. Register middleware, API routes, the dashboard page and /ws
//  6. Serve HTTP, then load the datasets and compute the first summaries
//
// The listener is bound before the datasets load, so /api/health/ready
// reports the bootstrap phase while it runs.
//
// # Graceful Shutdown
//
// Run stops on SIGINT or SIGTERM. Stop drains HTTP requests, closes the hub,
// the broker connection and the store, then flushes telemetry.
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
