// Package server implements the HTTP surface of the lesson library: the
// public catalog, teacher registration and uploads, and the admin approval
// pages. It wires the routes to the teachers, catalog and session packages
// and provides lifecycle helpers used by tests and the production binary.
package server
