// Package cli provides the interactive Macrometric command-line client.
//
// It wires configuration, local storage, the guarded API client, the diary
// store and the food search engine behind a small REPL. Typical flow: restore
// or log in to a session, open a diary day, search foods and log them.
//
// Key features:
//   - Register / Login / Logout
//   - Open a day and show entries with totals and goals
//   - Search foods (debounced, cached, cache fallback when the service fails)
//   - Add, update and delete entries and apply saved meals; changes show up
//     immediately and are reconciled with the service in the background
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
