// Package run holds the identity of the current run and its metadata.
package run
