// Package service contains the application services that orchestrate
// domain entities, stores, and the task engine on behalf of the API
// and CLI layers.
package service
