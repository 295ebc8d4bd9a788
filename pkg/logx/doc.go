// Package logx configures postbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON lines
//   - an optional Telegram sink forwards warnings to an operator chat
//     (min-level + rate limited, never blocks the caller)
package logx
