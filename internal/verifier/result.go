package verifier

import (
	"encoding/json"

	"github.com/propertyafrica/kyc-api/internal/logging"
)

// NoFaceDetected is recorded when detection ran cleanly but found nothing.
const NoFaceDetected = "No face detected"

const errorPrefix = "Error: "

// Result is the verdict for one document image.
type Result struct {
	IsValid       bool     `json:"isValid"`
	FaceMatched   bool     `json:"faceMatched"`
	ExtractedText string   `json:"extractedText"`
	Errors        []string `json:"errors"`

	// FaceCount is kept for persistence and is not part of the wire format.
	FaceCount int `json:"-"`
}

// MarshalJSON always emits errors as an array, never null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return json.Marshal(plain(r))
}

func errorEntry(err error) string {
	return errorPrefix + logging.Message(err)
}
