// Package infra contains technical adapters: SQL storage, the websocket
// transport, the MQTT bridge, metrics exporters, logging and error
// monitoring. These packages depend only on the interfaces defined in the
// core packages.
package infra
