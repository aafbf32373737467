package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message with a role and content.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// IsUser reports whether the message was typed by the user
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// History is the persisted conversation for one model folder
type History struct {
	ModelPath string    `json:"model_path"`
	Messages  []Message `json:"messages"`
}

// LoadHistory reads the history file. A missing file yields an empty history.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse chat history %s: %w", path, err)
	}
	return &h, nil
}

// Save writes the history file, creating its directory when needed
func (h *History) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SwitchModel points the history at modelPath, dropping the messages when
// the folder differs from the current one. It reports whether it cleared.
func (h *History) SwitchModel(modelPath string) bool {
	if h.ModelPath == modelPath {
		return false
	}
	h.ModelPath = modelPath
	h.Messages = nil
	return true
}

// Append adds a message stamped with the current time
func (h *History) Append(role, content string) {
	h.Messages = append(h.Messages, Message{Role: role, Content: content, Time: time.Now()})
}

// Reset clears all messages but keeps the model folder
func (h *History) Reset() {
	h.Messages = nil
}
