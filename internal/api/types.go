// Package api defines the JSON request and response bodies of the HTTP API.
package api

import "time"

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictionResponse is the model-level part of a diagnosis.
type PredictionResponse struct {
	Index      int       `json:"index"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"scores,omitempty"`
}

// ImageResponse describes the uploaded image. The image itself is never stored.
type ImageResponse struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Digest string `json:"digest"`
}

// DiagnosisResponse is the body of POST /v1/diagnoses and each item of GET /v1/diagnoses.
type DiagnosisResponse struct {
	ID         string             `json:"id"`
	Label      string             `json:"label"`
	Healthy    bool               `json:"healthy"`
	Advice     string             `json:"advice"`
	Source     string             `json:"source"`
	Prediction PredictionResponse `json:"prediction"`
	Image      ImageResponse      `json:"image"`
	Model      string             `json:"model"`
	CreatedAt  time.Time          `json:"created_at"`
}

// LabelResponse is one row of GET /v1/labels.
type LabelResponse struct {
	Index          int    `json:"index"`
	Label          string `json:"label"`
	Healthy        bool   `json:"healthy"`
	Recommendation string `json:"recommendation"`
}

// HistoryResponse is the body of GET /v1/diagnoses.
type HistoryResponse struct {
	Items  []DiagnosisResponse `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// LabelCountResponse is one row of GET /v1/diagnoses/stats.
type LabelCountResponse struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// StatsResponse is the body of GET /v1/diagnoses/stats.
type StatsResponse struct {
	Total  int64                `json:"total"`
	Labels []LabelCountResponse `json:"labels"`
}
