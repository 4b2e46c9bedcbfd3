package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"govee-bridge/internal/domain"
)

func StateTopic(prefix, slug string) string {
	return prefix + "/" + slug + "/state"
}

// CommandFilter is the wildcard subscription covering every device's set
// topic.
func CommandFilter(prefix string) string {
	return prefix + "/+/set"
}

func SlugFromCommandTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	slug, ok := strings.CutSuffix(rest, "/set")
	if !ok || slug == "" || strings.Contains(slug, "/") {
		return "", false
	}
	return slug, true
}

// ParseCommand accepts either a JSON intent or the plain payloads ON and OFF.
func ParseCommand(payload []byte) (domain.Intent, error) {
	text := strings.TrimSpace(string(payload))

	switch strings.ToUpper(text) {
	case "ON":
		return domain.Intent{Action: domain.ActionTurnOn}, nil
	case "OFF":
		return domain.Intent{Action: domain.ActionTurnOff}, nil
	}

	var intent domain.Intent
	if err := json.Unmarshal([]byte(text), &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("parsing command: %w", err)
	}
	if intent.Action == "" {
		return domain.Intent{}, fmt.Errorf("parsing command: missing action")
	}
	return intent, nil
}
