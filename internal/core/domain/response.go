package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type Intent string

const (
	IntentAccept    Intent = "ACCEPT"
	IntentDecline   Intent = "DECLINE"
	IntentAmbiguous Intent = "AMBIGUOUS"
)

var acceptReplies = map[string]bool{
	"yes": true, "y": true, "accept": true, "ok": true, "okay": true,
	"si": true, "sí": true, "1": true, "confirm": true,
}

var declineReplies = map[string]bool{
	"no": true, "n": true, "decline": true, "2": true, "cant": true, "can't": true,
}

// InterpretReply сводит текст ответа или DTMF к намерению.
// Распознаются только однозначные короткие ответы, все остальное AMBIGUOUS.
func InterpretReply(raw string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimRightFunc(normalized, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if normalized == "" {
		return IntentAmbiguous
	}
	if acceptReplies[normalized] {
		return IntentAccept
	}
	if declineReplies[normalized] {
		return IntentDecline
	}
	return IntentAmbiguous
}

type ResponseRecord struct {
	ID                uuid.UUID `json:"id"`
	AttemptID         uuid.UUID `json:"attemptId"`
	ProviderMessageID string    `json:"providerMessageId"`
	RawText           string    `json:"rawText"`
	Intent            Intent    `json:"intent"`
	ReceivedAt        time.Time `json:"receivedAt"`
}

// ChannelEvent - нормализованное входящее событие от любого канала.
type ChannelEvent struct {
	ProviderMessageID    string    `json:"provider_message_id" binding:"required"`
	AttemptCorrelationID string    `json:"attempt_correlation_id" binding:"required"`
	RawTextOrDTMF        string    `json:"raw_text_or_dtmf"`
	ReceivedAt           time.Time `json:"received_at"`
}

type EventOutcome string

const (
	EventOutcomeAssigned      EventOutcome = "assigned"
	EventOutcomeAlreadyFilled EventOutcome = "already_filled"
	EventOutcomeDeclined      EventOutcome = "declined"
	EventOutcomeClarification EventOutcome = "clarification_requested"
	EventOutcomeDuplicate     EventOutcome = "duplicate"
	// Принятие после эскалации передано дежурному для ручного назначения
	EventOutcomeForwarded EventOutcome = "forwarded_to_coordinator"
)
