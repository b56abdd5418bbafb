// Command sentineld runs the proxy harvesting, validation and serving
// engine described in SPEC_FULL.md: it loads configuration, starts the
// Engine's scheduled fetch/revalidate/retain/persist cycles, and serves
// the embedded dashboard and Prometheus metrics over HTTP.
//
// Usage:
//
//	sentineld run --config /etc/sentinel/config.yaml
//	sentineld version
package main

func main() {
	Execute()
}
