// Package accounts implements the Credential Store: an in-memory registry of
// named credential sets that the session can switch between.
//
// Account files are YAML and support ${VAR} environment substitution so that
// secrets can be kept out of the file itself.
package accounts
