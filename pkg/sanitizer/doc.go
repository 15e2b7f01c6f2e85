// Package sanitizer normalizes request input before validation.
//
// All functions are idempotent and never fail: invalid input comes back
// empty or unchanged and is left for the validator to reject.
//
//   - Identifiers: trimmed, inner content untouched
//   - Strings: whitespace runs collapsed to one space, trimmed
//   - Features: lowercased, separators folded to "_" ("EV Charging" becomes "ev_charging")
//   - Slices: empty values and duplicates dropped after normalization, order kept
package sanitizer
