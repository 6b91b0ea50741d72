// Package cli provides the interactive Fieldline reporter.
//
// A Session drives the process-wide app context from a line-oriented REPL:
// capture incidents with evidence files, inspect the offline queue, retry
// or discard rejected reports, and acknowledge alerts. Alerts and
// rejections are printed as they arrive, between prompts.
//
// Session.Run blocks until the input ends or the user exits.
package cli
