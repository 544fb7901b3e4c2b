package fixtures

// This package provides common test fixtures and utilities.
// Fixtures are reusable test data and helper functions that can be
// shared across different test suites.
//
// For TLS certificate generation, use github.com/flowmetrics/qpipe/security/tlstest
// which is in the root module and importable by all sub-modules.
