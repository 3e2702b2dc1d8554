// Package logx configures wabot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional relay sink (operator chat), filtered by min-level and rate limited
package logx
