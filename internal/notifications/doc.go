// Package notifications announces finished conversion runs.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// CLI is the only caller; the pipeline itself never blocks on delivery.
package notifications
