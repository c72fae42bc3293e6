// Package ui renders the styled terminal output of bootl-analyze.
//
// Components are rendered once and printed; nothing is interactive:
//
//   - Header: command banner showing the command and its query parameters
//   - Result: success, warning or failure box with ordered details
//   - Progress: one-line bar redrawn in place while expansions are solved
//
// Reports themselves are written by the analysis package so they stay
// machine readable. Commands print a Header before and a Result after the
// report only when stderr is a terminal (see IsTerminal), and write both to
// stderr so redirected output holds nothing but the report.
//
// # Logging Integration
//
// Logging is controlled via the BOOTL_LOG_LEVEL environment variable. When
// unset or empty, zap logging is silent, allowing the curated UI output to be
// displayed cleanly.
package ui
