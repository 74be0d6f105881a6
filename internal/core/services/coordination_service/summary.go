package coordination_service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

// buildHistory сопоставляет каждой попытке последний ответ кандидата.
func buildHistory(attempts []domain.OutreachAttempt, responses []domain.ResponseRecord) []domain.AttemptOutcome {
	lastIntent := make(map[uuid.UUID]domain.Intent, len(responses))
	for _, r := range responses {
		lastIntent[r.AttemptID] = r.Intent
	}

	history := make([]domain.AttemptOutcome, 0, len(attempts))
	for _, a := range attempts {
		history = append(history, domain.AttemptOutcome{
			Tier:           a.Tier,
			CandidateID:    a.CandidateID,
			Channel:        a.Channel,
			DeliveryStatus: a.DeliveryStatus,
			Response:       lastIntent[a.ID],
		})
	}
	return history
}

func shiftHeader(slot *domain.ShiftSlot, loc *time.Location) string {
	header := fmt.Sprintf("Shift %s on %s", slot.ShiftRef, shiftWindowText(slot, loc))
	if slot.ClientID != "" {
		header += fmt.Sprintf(" (client %s)", slot.ClientID)
	}
	return header
}

func escalationSummary(slot *domain.ShiftSlot, reason string, history []domain.AttemptOutcome, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(shiftHeader(slot, loc))
	sb.WriteString(fmt.Sprintf(" needs manual coverage: %s.\n", reason))
	sb.WriteString(fmt.Sprintf("Waves: %d, attempts: %d.\n", slot.Tier, len(history)))

	for _, h := range history {
		response := "no response"
		if h.Response != "" {
			response = string(h.Response)
		}
		sb.WriteString(fmt.Sprintf("- wave %d %s %s: %s, %s\n", h.Tier, h.Channel, h.CandidateID, h.DeliveryStatus, response))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func tierAdvanceSummary(slot *domain.ShiftSlot, fromTier int, policy domain.TierPolicy, loc *time.Location) string {
	var relaxed []string
	if policy.RelaxLanguage {
		relaxed = append(relaxed, "language")
	}
	if policy.RelaxSkills {
		relaxed = append(relaxed, "skills")
	}

	summary := fmt.Sprintf("%s: wave %d expired without acceptance, starting wave %d over %s",
		shiftHeader(slot, loc), fromTier, policy.Tier, policy.Channel)
	if len(relaxed) > 0 {
		summary += " with relaxed " + strings.Join(relaxed, " and ")
	}
	return summary + "."
}

func interactionSummary(slot *domain.ShiftSlot, attempt *domain.OutreachAttempt, reason string, loc *time.Location) string {
	return fmt.Sprintf("%s: candidate %s (wave %d, %s) needs a human follow-up: %s.",
		shiftHeader(slot, loc), attempt.CandidateID, attempt.Tier, attempt.Recipient, reason)
}

func lateAcceptSummary(slot *domain.ShiftSlot, attempt *domain.OutreachAttempt, loc *time.Location) string {
	return fmt.Sprintf("%s: candidate %s (%s) accepted after escalation. Assign manually if still needed.",
		shiftHeader(slot, loc), attempt.CandidateID, attempt.Recipient)
}

func meltdownSummary(reason string) string {
	return fmt.Sprintf("Automated outreach halted: %s. All active shifts were escalated. Reset required.", reason)
}
