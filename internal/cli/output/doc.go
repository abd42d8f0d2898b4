// Package output renders sandstore-cli results as tables, JSON or YAML.
//
// Query results are Documents: the table form uses the union of their
// top-level fields as columns, with _id first. Nested values are shown as
// compact JSON and, outside wide mode, truncated.
package output
