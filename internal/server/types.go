// Package server provides the HTTP server for the table read stitching API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateStitchRequest is the HTTP request body for creating a stitch job.
// Omitted settings fall back to the server defaults.
type CreateStitchRequest struct {
	// Clips are the clip URLs in script order.
	Clips []string `json:"clips" validate:"required,min=1,max=1000,dive,required,url"`
	// PauseMs is the silence between consecutive clips in milliseconds.
	PauseMs *int `json:"pause_ms,omitempty" validate:"omitempty,gte=0,lte=60000"`
	// RoomToneVolume scales the room tone bed, from 0 to 1.
	RoomToneVolume *float64 `json:"room_tone_volume,omitempty" validate:"omitempty,gte=0,lte=1"`
	// SampleRate is the output sample rate in Hz.
	SampleRate *int `json:"sample_rate,omitempty" validate:"omitempty,gt=0,lte=384000"`
	// PushToS3 indicates whether to upload the finished recording to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateStitchResponse is the HTTP response after creating a stitch job.
type CreateStitchResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// StitchResponse is the HTTP response for getting job details.
type StitchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Stage, Current, Total and Message mirror the latest progress event.
	Stage   string `json:"stage,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// FailedClip is the index of the clip that caused a failure.
	FailedClip *int `json:"failed_clip,omitempty"`
	// DurationSeconds is the length of the finished recording.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// AudioURL is the S3 URL of the recording, or the path of the audio
	// endpoint when it was kept locally.
	AudioURL    string     `json:"audio_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListStitchesResponse is the HTTP response for listing jobs.
type ListStitchesResponse struct {
	Stitches []StitchResponse `json:"stitches"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
