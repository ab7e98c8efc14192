package trigger

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errEmptyCommand = errors.New("empty trigger command")

// pushEnvelope is the body of a Pub/Sub push delivery.
type pushEnvelope struct {
	Message *struct {
		Data string `json:"data"`
	} `json:"message"`
}

// DecodeCommand extracts the command from a request body: either the plain
// command text or a Pub/Sub push envelope whose data is the base64 command.
func DecodeCommand(body []byte) (string, error) {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var env pushEnvelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			return "", fmt.Errorf("decode push envelope: %w", err)
		}
		if env.Message == nil {
			return "", errors.New("push envelope has no message")
		}
		data, err := base64.StdEncoding.DecodeString(env.Message.Data)
		if err != nil {
			return "", fmt.Errorf("decode message data: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return "", errEmptyCommand
	}
	return text, nil
}
