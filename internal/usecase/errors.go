package usecase

import (
	"errors"
	"fmt"
)

// Kind classifies enroll and verify failures.
type Kind string

const (
	KindNoPayload         Kind = "no_payload"
	KindImageDecode       Kind = "image_decode_error"
	KindNoFaceDetected    Kind = "no_face_detected"
	KindReferenceNotFound Kind = "reference_not_found"
	KindLengthMismatch    Kind = "descriptor_length_mismatch"
	KindPersistence       Kind = "persistence_error"
	KindInternal          Kind = "internal_error"
)

// IsValidation reports whether the caller has to fix the input. Validation
// failures are not retried and are reported with their message.
func (k Kind) IsValidation() bool {
	switch k {
	case KindNoPayload, KindImageDecode, KindNoFaceDetected, KindReferenceNotFound, KindLengthMismatch:
		return true
	}
	return false
}

// Error is returned by Enroll and Verify.
type Error struct {
	Kind    Kind
	Message string
	// InputLength and ReferenceLength are set for KindLengthMismatch.
	InputLength     int
	ReferenceLength int
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoPayload         = &Error{Kind: KindNoPayload, Message: msgNoPayload}
	ErrImageDecode       = &Error{Kind: KindImageDecode, Message: msgImageDecode}
	ErrNoFaceDetected    = &Error{Kind: KindNoFaceDetected}
	ErrReferenceNotFound = &Error{Kind: KindReferenceNotFound, Message: msgReferenceNotFound}
	ErrLengthMismatch    = &Error{Kind: KindLengthMismatch, Message: msgLengthMismatch}
	ErrPersistence       = &Error{Kind: KindPersistence, Message: msgPersistence}
	ErrInternal          = &Error{Kind: KindInternal, Message: msgInternal}
)

// ErrResultNotFound is returned by GetResult for unknown request ids.
var ErrResultNotFound = errors.New("verification result not found")

const (
	msgNoPayload         = "No image provided."
	msgImageDecode       = "Invalid base64 image data."
	msgNoFaceEnroll      = "No face detected in the reference image."
	msgNoFaceVerify      = "No face detected in the given image."
	msgReferenceNotFound = "Reference face not found. Please enroll a reference face first."
	msgLengthMismatch    = "Descriptor length mismatch. Cannot compare faces."
	msgPersistence       = "Error saving the reference face."
	msgInternal          = "Internal server error."
)

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindInternal for errors not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
