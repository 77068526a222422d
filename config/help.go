package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
Live location relay.

Usage:
  relay [-config-path config.yaml] [-port 8080]

WebSocket endpoints:
  /driver/{driverIdentity}   driver clients stream {latitude, longitude, speed?, heading?, accuracy?}
  /track/{driverIdentity}    subscribers receive every location of that driver

HTTP endpoints:
  POST /api/drivers/{driverIdentity}/location   publish a location without a websocket
  GET  /api/drivers/{driverIdentity}/location   last known location
  GET  /health, /metrics, /swagger/

Every option can be set in the YAML file or through its environment variable
(relay.port -> RELAY_PORT, store.driver -> STORE_DRIVER, ...).

Flags:
`

func PrintHelp() {
	fmt.Printf("%s", HelpMessage)
	flag.PrintDefaults()
}
