// Package logx configures crossbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink (min-level + rate limiting)
//
// TraceLog is separate from the structured logger: it is an append-only,
// human-readable file that records every aborted phase with its stack.
package logx
