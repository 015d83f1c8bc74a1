// Package api implements the HTTP handlers, request/response models,
// and error mapping for the dispatch API surface.
package api
