package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WriteSSEData writes payload as one `data:` frame.
func WriteSSEData(w io.Writer, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteSSEDone writes the terminal frame used by OpenAI-compatible streams.
func WriteSSEDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}

// SetupStreamHeaders prepares a chunked streaming response of the given content type.
func SetupStreamHeaders(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
