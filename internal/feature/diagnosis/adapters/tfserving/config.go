// Package tfserving provides a classifier model backed by a TensorFlow Serving REST endpoint.
package tfserving

import "time"

// Config holds configuration for the TensorFlow Serving client.
type Config struct {
	BaseURL   string        // Base URL of the model server (e.g., "http://localhost:8501")
	ModelName string        // Served model name used in /v1/models/{name}:predict
	Version   string        // Optional model version; empty selects the latest
	Timeout   time.Duration // HTTP request timeout
}
