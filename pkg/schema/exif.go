package schema

import "time"

// ExifRecord is the camera metadata persisted on a photo record once
// processing completes. All fields are optional; a photo with no usable
// EXIF block simply has a nil record.
type ExifRecord struct {
	CameraMake   *string    `json:"cameraMake,omitempty"`
	CameraModel  *string    `json:"cameraModel,omitempty"`
	LensModel    *string    `json:"lensModel,omitempty"`
	Aperture     *float64   `json:"aperture,omitempty"`
	ShutterSpeed *string    `json:"shutterSpeed,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	FocalLength  *float64   `json:"focalLength,omitempty"`
	WhiteBalance *string    `json:"whiteBalance,omitempty"`
	MeteringMode *string    `json:"meteringMode,omitempty"`
	Flash        *string    `json:"flash,omitempty"`
	TakenAt      *time.Time `json:"takenAt,omitempty"`
}
