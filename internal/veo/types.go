// Package veo wraps the Veo video-generation service behind a small Service
// interface. The rest of the program depends on this interface and the domain
// types below; only the genai-backed client in client.go talks to the SDK.
package veo

// Image is a transfer-ready image descriptor: raw bytes plus the MIME type
// they should be sent with.
type Image struct {
	Bytes    []byte
	MIMEType string
}

// FileState is the processing state of a file uploaded through the files API.
type FileState string

// File states reported by the files API.
const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// FileHandle identifies a file uploaded to the service's file storage.
type FileHandle struct {
	Name     string
	URI      string
	MIMEType string
	State    FileState
}

// RefKind discriminates the two shapes an artifact reference can take.
type RefKind string

const (
	// RefDirect references the artifact payload returned inline with the
	// completed operation.
	RefDirect RefKind = "direct"
	// RefNamed references the artifact by its files-API name and must be
	// resolved through a file lookup before download.
	RefNamed RefKind = "named"
)

// ArtifactRef points at a generated video artifact. It is a tagged union:
// Kind selects whether the download resolves the files-API Name or uses the
// direct payload reference held by the client.
type ArtifactRef struct {
	Kind RefKind
	Name string
	URI  string

	direct *directRef
}

// Operation is an opaque handle to a remote asynchronous generation job.
// It is never mutated locally; PollOperation returns a fresh snapshot.
type Operation struct {
	// Name is the service-assigned operation identifier.
	Name string
	// Done reports whether the operation has reached a terminal state.
	Done bool
	// Failure carries the service-reported error detail for a failed
	// operation. Empty for running or successful operations.
	Failure string
	// Artifacts holds the generated-video references for a successful
	// operation, in service order.
	Artifacts []ArtifactRef

	raw rawOperation
}

// SubmitRequest is the fully-derived generation request handed to Submit.
// Optional fields left at their zero value are omitted from the remote call
// rather than sent as explicit choices.
type SubmitRequest struct {
	Model            string
	Prompt           string
	AspectRatio      string
	DurationSeconds  int32
	NegativePrompt   string
	Seed             *int32
	PersonGeneration string
	Image            *Image
	LastFrame        *Image
	ReferenceImages  []*Image
	Video            *FileHandle
}
