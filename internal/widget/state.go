package widget

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// localState is the client-side cache of the conversation. It has no authority: the server
// copy wins whenever the widget can reach it.
type localState struct {
	SessionID string         `json:"sessionId,omitempty"`
	Messages  []chat.Message `json:"messages,omitempty"`
}

// loadState returns the cached state. Missing or corrupt files read as empty.
func loadState(path string) localState {
	var st localState
	if path == "" {
		return st
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return localState{}
	}
	return st
}

func saveState(path string, st localState) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create widget state directory")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode widget state")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write widget state")
}
