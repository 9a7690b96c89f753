// Package domain defines domain-level errors for the diagnosis feature.
package domain

import "errors"

// Domain errors for classification and diagnosis operations.
// Adapters wrap these with %w so that transports can map them with errors.Is.
var (
	// ErrModelNotFound indicates that the model artifact does not exist at the configured path.
	ErrModelNotFound = errors.New("model file not found")

	// ErrModelLoad indicates that the model exists but could not be loaded or run by the runtime.
	ErrModelLoad = errors.New("model could not be loaded")

	// ErrModelUnavailable indicates that a remote model server failed or could not be reached.
	ErrModelUnavailable = errors.New("model server unavailable")

	// ErrInvalidImage indicates that the uploaded bytes are not a decodable image.
	ErrInvalidImage = errors.New("image could not be decoded")

	// ErrEmptyImage indicates that no image bytes were supplied.
	ErrEmptyImage = errors.New("image data is empty")

	// ErrImageTooLarge indicates that the image exceeds the byte or pixel limit.
	ErrImageTooLarge = errors.New("image is too large")

	// ErrShapeMismatch indicates that the model input or output shape does not match the label table.
	ErrShapeMismatch = errors.New("tensor shape mismatch")

	// ErrUnknownLabel indicates that a model's class list contains a label outside the fixed table.
	ErrUnknownLabel = errors.New("unknown label")

	// ErrNotAPlant indicates that the subject gate rejected the photo.
	ErrNotAPlant = errors.New("image does not show a plant")

	// ErrHistoryUnavailable indicates that diagnosis history is not configured.
	ErrHistoryUnavailable = errors.New("diagnosis history is not configured")
)
