// Package models defines the client-side domain values of the food diary:
// snapshots, categories, entries, foods, derived totals and the credential pair.
package models
