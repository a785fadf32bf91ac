// Package memplugin provides helper functions for WASM scenario guests.
package memplugin

// LogToHost logs a message from a WASM scenario to the host.
//
//go:wasm-module env
//export log_debug
func LogToHost(string) {}
