// Package output renders keymesh-cli results as tables, JSON or YAML.
//
// Values that know how to lay themselves out implement Tabular; anything
// else is rendered as a FIELD/VALUE table from its JSON field names.
package output
