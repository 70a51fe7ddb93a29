package utils

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ParseStringToUUID parses a UUID, rejecting the empty string and the nil
// UUID so handlers cannot act on a missing identity.
func ParseStringToUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("empty uuid")
	}
	uid, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if uid == uuid.Nil {
		return uuid.Nil, fmt.Errorf("nil uuid")
	}
	return uid, nil
}

// UnmarshalTask decodes an asynq task payload into v
func UnmarshalTask(t *asynq.Task, v interface{}) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("failed to unmarshal task %s payload: %w", t.Type(), err)
	}
	return nil
}
