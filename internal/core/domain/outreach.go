package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelVoice
}

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusSent       DeliveryStatus = "sent"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusInvalid    DeliveryStatus = "invalid"
	DeliveryStatusSuppressed DeliveryStatus = "suppressed"
	DeliveryStatusSuperseded DeliveryStatus = "superseded"
)

type OutreachAttempt struct {
	ID             uuid.UUID      `json:"id"`
	ShiftID        uuid.UUID      `json:"shiftId"`
	CandidateID    string         `json:"candidateId"`
	Channel        Channel        `json:"channel"`
	Tier           int            `json:"tier"`
	Recipient      string         `json:"recipient"`
	Message        string         `json:"message"`
	IdempotencyKey string         `json:"idempotencyKey"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	DeliveryID     string         `json:"deliveryId,omitempty"`
	SendAttempts   int            `json:"sendAttempts"`
	SentAt         *time.Time     `json:"sentAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// AttemptIdempotencyKey - ключ shift:candidate:tier, уникален в хранилище.
func AttemptIdempotencyKey(shiftID uuid.UUID, candidateID string, tier int) string {
	return fmt.Sprintf("%s:%s:%d", shiftID, candidateID, tier)
}

// OutboundMessage - сообщение для шлюза каналов.
type OutboundMessage struct {
	Channel       Channel `json:"channel"`
	Recipient     string  `json:"to"`
	Text          string  `json:"body"`
	CorrelationID string  `json:"correlationId"`
}

// SentMessage - запись истории исходящих сообщений по разговору.
type SentMessage struct {
	ConversationKey string    `json:"conversationKey"`
	Text            string    `json:"text"`
	SentAt          time.Time `json:"sentAt"`
}
