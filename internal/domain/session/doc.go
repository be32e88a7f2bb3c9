// Package session contains the record of one finished monitoring run.
//
// It defines Operator (who ran the pipeline and where) and Report (what the
// run saw) with Clone helpers to avoid leaking internal references.
package session
