// Package security holds the sensitive-data filter applied to every utterance and
// the input sanitiser that runs before it.
//
// The keyword vocabulary is embedded in the binary (keywords.yaml) so it cannot be
// changed on the host without a rebuild.
package security
