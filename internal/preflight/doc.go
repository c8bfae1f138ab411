// Package preflight provides readiness checks for the filesystem paths,
// binaries and account settings hopper depends on.
//
// These checks run in two contexts:
//   - The watch command runs RunAll at startup and logs every failed check
//     as a warning; it still starts, since files simply fail until fixed.
//   - The CLI "hopper preflight" command renders the results as a table
//     and exits non-zero when a required check fails.
package preflight
