// Tap captures, sanitizes and stores HTTP request/response exchanges.
//
// It runs as an HTTP server that either proxies traffic to an upstream
// service or serves a set of demo routes. Every exchange passes through the
// capture pipeline: bodies are size-limited, parsed and masked before the
// record is stored.
//
// Usage:
//
//	# Start the server with the default configuration file (tap.yaml)
//	tap serve
//
//	# Proxy to an upstream and reload capture settings on change
//	tap serve --config /etc/tap/tap.yaml --upstream http://localhost:3000 --watch
//
//	# Inspect stored captures
//	tap captures query --method POST --status-min 500
//	tap captures export --format csv --output captures.csv
//
//	# Apply retention now
//	tap prune
//
//	# Check a configuration file
//	tap validate --config tap.yaml
package main

func main() {
	Execute()
}
