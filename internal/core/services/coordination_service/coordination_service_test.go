package coordination_service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

func spanishSpeakers() []domain.CandidateProfile {
	return []domain.CandidateProfile{
		candidate("A", 0.95, "es", "en"),
		candidate("B", 0.90, "es"),
		candidate("C", 0.80, "es"),
	}
}

func TestReportCallOff_StartsFirstWave(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, created, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ShiftStatusWaveActive, slot.Status)
	assert.Equal(t, 1, slot.Tier)
	assert.Equal(t, "2026-03-02", slot.ShiftDate)
	require.NotNil(t, slot.WaveExpiresAt)
	assert.True(t, slot.WaveExpiresAt.Equal(callOffTime.Add(10*time.Minute)))

	attempts, err := h.store.ListAttempts(ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for _, a := range attempts {
		assert.Equal(t, domain.ChannelSMS, a.Channel)
		assert.Equal(t, domain.DeliveryStatusSent, a.DeliveryStatus)
		assert.Equal(t, 1, a.SendAttempts)
		assert.NotEmpty(t, a.DeliveryID)

		sent := h.channel.sentTo(a.Recipient)
		require.Len(t, sent, 1)
		assert.Equal(t, a.ID.String(), sent[0].CorrelationID)
		assert.Contains(t, sent[0].Text, "Mon Mar 2 09:00-12:00")
	}

	assert.Equal(t, 1, h.timer.armed[slot.ID])
}

func TestReportCallOff_Idempotent(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	first, created, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, h.channel.total())
}

func TestReportCallOff_Invalid(t *testing.T) {
	h := newHarness(t, nil)

	bad := callOff("S-100")
	bad.EndTime = bad.StartTime
	_, _, err := h.service.ReportCallOff(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidCallOff)
}

// Несколько одновременных "YES": ровно одно назначение.
func TestHandleChannelEvent_ConcurrentAccepts(t *testing.T) {
	candidates := []domain.CandidateProfile{
		candidate("A", 0.95, "es"),
		candidate("B", 0.90, "es"),
		candidate("C", 0.85, "es"),
		candidate("D", 0.80, "es"),
		candidate("E", 0.75, "es"),
	}
	h := newHarness(t, nil, candidates...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)

	attempts, err := h.store.ListAttempts(ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 5)

	outcomes := make([]domain.EventOutcome, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a domain.OutreachAttempt) {
			defer wg.Done()
			outcome, err := h.reply(a, fmt.Sprintf("msg-%s", a.CandidateID), "YES")
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i, a)
	}
	wg.Wait()

	var winner string
	for i, outcome := range outcomes {
		switch outcome {
		case domain.EventOutcomeAssigned:
			require.Empty(t, winner, "more than one winner")
			winner = attempts[i].CandidateID
		default:
			assert.Equal(t, domain.EventOutcomeAlreadyFilled, outcome)
		}
	}
	require.NotEmpty(t, winner)

	assignment, err := h.store.GetAssignment(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, assignment.CandidateID)
	assert.Equal(t, domain.AssignmentSourceAutomatic, assignment.Source)

	fresh, err := h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusFilled, fresh.Status)
	assert.True(t, h.timer.cancelled[slot.ID])

	after, err := h.store.ListAttempts(ctx, slot.ID)
	require.NoError(t, err)
	for _, a := range after {
		sent := h.channel.sentTo(a.Recipient)
		require.Len(t, sent, 2)
		if a.CandidateID == winner {
			assert.Equal(t, domain.DeliveryStatusSent, a.DeliveryStatus)
			assert.Contains(t, sent[1].Text, "Confirmed")
			continue
		}
		assert.Equal(t, domain.DeliveryStatusSuperseded, a.DeliveryStatus)
		assert.Equal(t, filledText(), sent[1].Text)
	}
}

func TestHandleChannelEvent_Duplicate(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	attempt := h.attemptFor(t, slot.ID, "A", 1)

	outcome, err := h.reply(attempt, "msg-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAssigned, outcome)
	sentBefore := h.channel.total()

	outcome, err = h.reply(attempt, "msg-1", "yes")
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
	assert.Equal(t, domain.EventOutcomeDuplicate, outcome)
	assert.Equal(t, sentBefore, h.channel.total())

	responses, err := h.store.ListResponses(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 1)
}

func TestHandleChannelEvent_RepeatAcceptFromWinner(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	attempt := h.attemptFor(t, slot.ID, "A", 1)

	_, err = h.reply(attempt, "msg-1", "YES")
	require.NoError(t, err)
	sentBefore := h.channel.total()

	outcome, err := h.reply(attempt, "msg-2", "YES")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAssigned, outcome)
	assert.Equal(t, sentBefore, h.channel.total())
}

func TestHandleChannelEvent_InvalidEvent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.service.HandleChannelEvent(ctx, domain.ChannelEvent{AttemptCorrelationID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = h.service.HandleChannelEvent(ctx, domain.ChannelEvent{ProviderMessageID: "m", AttemptCorrelationID: "not-a-uuid"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = h.service.HandleChannelEvent(ctx, domain.ChannelEvent{
		ProviderMessageID:    "m",
		AttemptCorrelationID: "8f14e45f-ceea-467f-a8f9-1b2c3d4e5f60",
	})
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestHandleChannelEvent_Decline(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	attempt := h.attemptFor(t, slot.ID, "B", 1)
	sentBefore := h.channel.total()

	outcome, err := h.reply(attempt, "msg-1", "no")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeDeclined, outcome)
	assert.Equal(t, sentBefore, h.channel.total())

	fresh, err := h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusWaveActive, fresh.Status)
}

// Четвертое одинаковое уточнение подавляется и уходит человеку.
func TestHandleChannelEvent_RepeatedClarificationSuppressed(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-100"))
	require.NoError(t, err)
	attempt := h.attemptFor(t, slot.ID, "C", 1)

	for i := 1; i <= 4; i++ {
		outcome, err := h.reply(attempt, fmt.Sprintf("msg-%d", i), "maybe later?")
		require.NoError(t, err)
		assert.Equal(t, domain.EventOutcomeClarification, outcome)
	}

	// outreach + 3 уточнения, четвертое не отправлено
	sent := h.channel.sentTo(attempt.Recipient)
	require.Len(t, sent, 4)
	for _, msg := range sent[1:] {
		assert.Contains(t, msg.Text, "did not understand")
	}

	interactions := h.notifier.byKind(domain.NotificationKindInteraction)
	require.Len(t, interactions, 1)
	assert.Equal(t, slot.ID, interactions[0].ShiftID)
	assert.Equal(t, domain.UrgencyNormal, interactions[0].Urgency)
	assert.Contains(t, interactions[0].Summary, "candidate C")
}

// Две волны без ответа: повышение до голосовой волны и одна эскалация.
func TestScenario_EscalationAfterTwoWaves(t *testing.T) {
	candidates := append(spanishSpeakers(), candidate("D", 0.99, "en"))
	h := newHarness(t, nil, candidates...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-200"))
	require.NoError(t, err)

	attempts, err := h.store.ListAttempts(ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3, "language is a hard filter in wave 1")

	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 1))

	fresh, err := h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "WAVE_ACTIVE(2)", fresh.StatusLabel())
	assert.Equal(t, 2, h.timer.armed[slot.ID])

	wave2 := h.attemptFor(t, slot.ID, "D", 2)
	assert.Equal(t, domain.ChannelVoice, wave2.Channel)
	assert.Equal(t, domain.DeliveryStatusSent, wave2.DeliveryStatus)
	assert.Contains(t, h.channel.sentTo(wave2.Recipient)[0].Text, "Press 1 to accept")

	advances := h.notifier.byKind(domain.NotificationKindTierAdvance)
	require.Len(t, advances, 1)
	assert.Equal(t, domain.UrgencyLow, advances[0].Urgency)

	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 2))
	// повторное срабатывание того же таймера
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 2))

	fresh, err = h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusEscalated, fresh.Status)
	assert.Equal(t, 2, fresh.Tier)

	escalations := h.notifier.byKind(domain.NotificationKindEscalated)
	require.Len(t, escalations, 1)
	assert.Equal(t, 2, escalations[0].Waves)
	assert.Equal(t, domain.UrgencyHigh, escalations[0].Urgency)
	require.Len(t, escalations[0].History, 4)
	assert.Equal(t, "D", escalations[0].History[3].CandidateID)
	assert.Equal(t, domain.ChannelVoice, escalations[0].History[3].Channel)
	assert.Contains(t, escalations[0].Summary, "Waves: 2, attempts: 4")

	// после начала смены слот закрывается, ручное назначение остается возможным
	h.advance(time.Hour)
	require.NoError(t, h.service.SweepDue(ctx, h.clock()))

	fresh, err = h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusUnfilledExpired, fresh.Status)

	assignment, err := h.service.AssignManually(ctx, slot.ID, "G7")
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentSourceManual, assignment.Source)
}

// Повторное срабатывание таймера одной волны не запускает ее дважды.
func TestHandleWaveExpiry_ConcurrentFires(t *testing.T) {
	candidates := append(spanishSpeakers(), candidate("D", 0.99, "en"))
	h := newHarness(t, nil, candidates...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-300"))
	require.NoError(t, err)
	h.advance(10 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 1))
		}()
	}
	wg.Wait()

	attempts, err := h.store.ListAttempts(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 4)
	assert.Len(t, h.notifier.byKind(domain.NotificationKindTierAdvance), 1)
	assert.Len(t, h.channel.sentTo("+1555D"), 1)

	seen := map[string]bool{}
	for _, a := range attempts {
		assert.False(t, seen[a.IdempotencyKey])
		seen[a.IdempotencyKey] = true
	}
}

func TestHandleChannelEvent_AcceptFromEarlierWave(t *testing.T) {
	candidates := append(spanishSpeakers(), candidate("D", 0.99, "en"))
	h := newHarness(t, nil, candidates...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-400"))
	require.NoError(t, err)
	early := h.attemptFor(t, slot.ID, "B", 1)

	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 1))

	outcome, err := h.reply(early, "msg-1", "Yes!")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAssigned, outcome)

	assignment, err := h.store.GetAssignment(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", assignment.CandidateID)
	require.NotNil(t, assignment.AcceptedAttemptID)
	assert.Equal(t, early.ID, *assignment.AcceptedAttemptID)

	voice := h.attemptFor(t, slot.ID, "D", 2)
	assert.Equal(t, domain.DeliveryStatusSuperseded, voice.DeliveryStatus)
}

func TestHandleChannelEvent_LateAcceptForwarded(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-500"))
	require.NoError(t, err)
	attempt := h.attemptFor(t, slot.ID, "A", 1)

	// во второй волне кандидатов не осталось
	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 1))
	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 2))

	outcome, err := h.reply(attempt, "msg-1", "YES")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeForwarded, outcome)

	interactions := h.notifier.byKind(domain.NotificationKindInteraction)
	require.Len(t, interactions, 1)
	assert.Equal(t, domain.UrgencyHigh, interactions[0].Urgency)
	assert.Contains(t, interactions[0].Summary, "accepted after escalation")

	fresh, err := h.store.GetShiftSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusEscalated, fresh.Status)
}

func TestDispatch_RetriesAndInvalidRecipients(t *testing.T) {
	candidates := spanishSpeakers()
	candidates[2].Phone = ""
	h := newHarness(t, nil, candidates...)
	h.channel.failFor("+1555A", domain.ErrChannelUnavailable)
	h.channel.failFor("+1555B", domain.ErrRecipientInvalid)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-600"))
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusWaveActive, slot.Status)

	a := h.attemptFor(t, slot.ID, "A", 1)
	assert.Equal(t, domain.DeliveryStatusFailed, a.DeliveryStatus)
	assert.Equal(t, 3, a.SendAttempts)
	assert.Equal(t, 3, h.channel.calls["+1555A"])

	b := h.attemptFor(t, slot.ID, "B", 1)
	assert.Equal(t, domain.DeliveryStatusInvalid, b.DeliveryStatus)
	assert.Equal(t, 1, h.channel.calls["+1555B"])

	c := h.attemptFor(t, slot.ID, "C", 1)
	assert.Equal(t, domain.DeliveryStatusInvalid, c.DeliveryStatus)
	assert.Equal(t, 0, c.SendAttempts)
}

func TestDispatch_DirectoryUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.directory.err = domain.ErrDirectoryUnavailable
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-700"))
	require.NoError(t, err)
	assert.Equal(t, "WAVE_ACTIVE(1)", slot.StatusLabel())
	assert.Zero(t, h.channel.total())

	// справочник вернулся ко второй волне
	h.directory.mu.Lock()
	h.directory.err = nil
	h.directory.candidates = spanishSpeakers()
	h.directory.mu.Unlock()

	h.advance(10 * time.Minute)
	require.NoError(t, h.service.HandleWaveExpiry(ctx, slot.ID, 1))
	assert.Equal(t, 3, h.channel.total())
}

func TestMeltdown_HaltsAndEscalates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meltdown.MaxFailures = 2
	cfg.Outreach.MaxSendAttempts = 1
	cfg.Outreach.Concurrency = 1
	h := newHarness(t, cfg, spanishSpeakers()...)
	for _, c := range spanishSpeakers() {
		h.channel.failFor(c.Phone, domain.ErrChannelUnavailable)
	}
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-800"))
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusEscalated, slot.Status)

	state, err := h.store.GetEngineState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Halted)
	assert.Contains(t, state.Reason, "3 failed sends")

	meltdowns := h.notifier.byKind(domain.NotificationKindMeltdown)
	require.Len(t, meltdowns, 1)
	assert.Equal(t, domain.UrgencyCritical, meltdowns[0].Urgency)

	escalations := h.notifier.byKind(domain.NotificationKindEscalated)
	require.Len(t, escalations, 1)
	assert.Equal(t, domain.UrgencyCritical, escalations[0].Urgency)

	// пока автоматика остановлена, новые слоты сразу уходят людям
	next, _, err := h.service.ReportCallOff(ctx, callOff("S-801"))
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusEscalated, next.Status)
	assert.Len(t, h.notifier.byKind(domain.NotificationKindMeltdown), 1)

	require.NoError(t, h.service.ResetMeltdown(ctx))
	state, err = h.store.GetEngineState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Halted)
}

func TestAssignManually(t *testing.T) {
	h := newHarness(t, nil, spanishSpeakers()...)
	ctx := context.Background()

	slot, _, err := h.service.ReportCallOff(ctx, callOff("S-900"))
	require.NoError(t, err)

	_, err = h.service.AssignManually(ctx, slot.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidAssignment)

	assignment, err := h.service.AssignManually(ctx, slot.ID, "G42")
	require.NoError(t, err)
	assert.Equal(t, "G42", assignment.CandidateID)
	assert.Nil(t, assignment.AcceptedAttemptID)
	assert.True(t, h.timer.cancelled[slot.ID])

	_, err = h.service.AssignManually(ctx, slot.ID, "G43")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	outcome, err := h.reply(h.attemptFor(t, slot.ID, "A", 1), "msg-1", "YES")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAlreadyFilled, outcome)

	overview, err := h.service.GetShiftOverview(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusFilled, overview.Slot.Status)
	require.NotNil(t, overview.Assignment)
	assert.Equal(t, "G42", overview.Assignment.CandidateID)
	assert.Len(t, overview.Responses, 1)
	for _, a := range overview.Attempts {
		assert.Equal(t, domain.DeliveryStatusSuperseded, a.DeliveryStatus)
	}
}

func TestSweepDue(t *testing.T) {
	candidates := append(spanishSpeakers(), candidate("D", 0.99, "en"))
	h := newHarness(t, nil, candidates...)
	ctx := context.Background()

	active, _, err := h.service.ReportCallOff(ctx, callOff("S-1000"))
	require.NoError(t, err)

	// слот, застрявший в OPEN после сбоя между созданием и рассылкой
	stuck := callOff("S-1001")
	open, created, err := h.store.CreateShiftSlot(ctx, &domain.ShiftSlot{
		ID:               uuid.New(),
		ShiftRef:         stuck.ShiftRef,
		ShiftDate:        "2026-03-02",
		StartTime:        stuck.StartTime,
		EndTime:          stuck.EndTime,
		RequiredSkills:   stuck.RequiredSkills,
		RequiredLanguage: stuck.RequiredLanguage,
		Status:           domain.ShiftStatusOpen,
		CreatedAt:        callOffTime,
	})
	require.NoError(t, err)
	require.True(t, created)

	// ничего не просрочено
	require.NoError(t, h.service.SweepDue(ctx, h.clock()))
	fresh, err := h.store.GetShiftSlot(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusOpen, fresh.Status)

	h.advance(11 * time.Minute)
	require.NoError(t, h.service.SweepDue(ctx, h.clock()))

	fresh, err = h.store.GetShiftSlot(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "WAVE_ACTIVE(2)", fresh.StatusLabel())

	fresh, err = h.store.GetShiftSlot(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, "WAVE_ACTIVE(1)", fresh.StatusLabel())

	attempts, err := h.store.ListAttempts(ctx, open.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}
