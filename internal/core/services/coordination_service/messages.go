package coordination_service

import (
	"fmt"
	"strings"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

func shiftWindowText(slot *domain.ShiftSlot, loc *time.Location) string {
	start := slot.StartTime.In(loc)
	end := slot.EndTime.In(loc)
	return fmt.Sprintf("%s %s-%s", start.Format("Mon Jan 2"), start.Format("15:04"), end.Format("15:04"))
}

func outreachText(slot *domain.ShiftSlot, channel domain.Channel, loc *time.Location) string {
	when := shiftWindowText(slot, loc)
	if channel == domain.ChannelVoice {
		return fmt.Sprintf("Hello, this is the scheduling office. A care shift is open on %s. Press 1 to accept or 2 to decline.", when)
	}

	var sb strings.Builder
	sb.WriteString("Open shift ")
	sb.WriteString(when)
	if len(slot.RequiredSkills) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(slot.RequiredSkills, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(". Reply YES to accept or NO to decline.")
	return sb.String()
}

func confirmationText(slot *domain.ShiftSlot, loc *time.Location) string {
	return fmt.Sprintf("Confirmed: the shift on %s is yours. Thank you!", shiftWindowText(slot, loc))
}

func filledText() string {
	return "Thanks for responding. This shift has been filled."
}

func clarificationText(slot *domain.ShiftSlot, loc *time.Location) string {
	return fmt.Sprintf("Sorry, we did not understand. Reply YES to accept the shift on %s or NO to decline.", shiftWindowText(slot, loc))
}

func forwardedText(slot *domain.ShiftSlot, loc *time.Location) string {
	return fmt.Sprintf("Thanks! A coordinator will confirm the shift on %s with you shortly.", shiftWindowText(slot, loc))
}
