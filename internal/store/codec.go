package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// unavailable marks err as a transport/storage failure so callers can tell
// it apart from domain.ErrNotFound and an empty result.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

// wrapTxErr keeps domain errors raised inside a transaction as they are and
// marks everything else unavailable.
func wrapTxErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func applyPatch(conv *domain.Conversation, patch domain.ConversationPatch, updatedAt time.Time) {
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.Metadata != nil {
		conv.Metadata = *patch.Metadata
	}
	conv.Touch(updatedAt)
}
