// Package server composes Moard's HTTP handler chain: request ids, access
// logging, proxy trust, security headers, sessions, image uploads and CSRF
// protection in front of the page router. It also serves static assets and
// the health and metrics endpoints, and provides the lifecycle helpers used
// by the binary and tests.
package server
