package dto

// RegisterStudentRequest creates a student together with their face
// reference. PhotoBase64 carries the reference image as a data URL or raw
// base64 payload captured by the client.
type RegisterStudentRequest struct {
	FullName    string `json:"full_name" validate:"required,min=2"`
	Roll        string `json:"roll" validate:"required,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	PhotoBase64 string `json:"photo" validate:"required"`
}

// MarkAttendanceRequest submits a live capture for verification. Descriptor
// optionally carries the client-side extracted embedding so the ledger can
// still verify when the recognition service is unreachable.
type MarkAttendanceRequest struct {
	StudentID   string    `json:"student_id" validate:"required"`
	ImageBase64 string    `json:"image" validate:"required"`
	Descriptor  []float32 `json:"descriptor,omitempty"`
}

// UpdateFlagRequest flips the student self-auth switch.
type UpdateFlagRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
