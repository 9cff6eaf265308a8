// Package logx wraps zerolog for the bridge.
//
// Console output is human readable, file output is JSON, and an optional
// Telegram sink forwards records above a minimum level with rate limiting.
package logx
