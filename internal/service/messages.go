package service

import (
	"fmt"
	"strings"

	"github.com/iliyamo/experience-booking/internal/model"
)

// Customer facing SMS texts. Every message ends with the brand signature.
const signature = " - Understory"

const (
	msgBookingNotFound = "Beklager, vi kunne ikke finde din booking. Kontakt venligst support." + signature
	msgCancelled       = "Tak for din besked. Din booking er blevet annulleret. Hvis du har spørgsmål, kontakt venligst support." + signature
	msgUnrecognized    = "Beklager, vi forstod ikke dit svar. Svar venligst X for ja eller Y for nej." + signature
)

func reminderMessage(b model.Booking) string {
	name := strings.TrimSpace(b.CustomerName)
	if name == "" {
		name = "ven"
	}
	return fmt.Sprintf("Hej %s! Husk din oplevelse \"%s\" i morgen, %s. Svar X for at bekræfte eller Y for at annullere.%s",
		name, b.ExperienceTitle, model.FormatDanishDate(b.BookingDate), signature)
}

func confirmedMessage(b model.Booking) string {
	return fmt.Sprintf("Tak for din bekræftelse! Vi glæder os til at se dig til \"%s\" den %s.%s",
		b.ExperienceTitle, model.FormatDanishDate(b.BookingDate), signature)
}

// ParseReply maps an SMS body to a reminder response. The body is trimmed
// and upper-cased, so " x " counts as a yes. Anything other than X or Y
// returns ok=false.
func ParseReply(body string) (resp model.ReminderResponse, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "X":
		return model.ResponseYes, true
	case "Y":
		return model.ResponseNo, true
	}
	return "", false
}
