// Package middleware provides the gin middleware of the qgpt HTTP API.
//
// This package includes:
//   - RequestID: Adds a unique request ID to each request
//   - Logger: Structured request logging
//   - Recovery: Panic recovery with a JSON error envelope
//
// Usage:
//
//	engine := gin.New()
//	engine.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())
package middleware
