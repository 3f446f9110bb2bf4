// Package server implements the websocket relay for browser clients and the
// HTTP surface: static assets for the capture client, health/session
// monitoring endpoints, and Prometheus metrics. Each websocket connection is
// assigned a session id at upgrade time and its events are fed to the
// dispatch pipeline in arrival order by a single read loop.
package server
