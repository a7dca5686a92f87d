package model

import "time"

// SmsLog is one row of the append-only SMS audit trail. Every inbound and
// outbound message is recorded, whether or not it could be matched to a
// booking.
type SmsLog struct {
	ID                uint64    `json:"id"`                            // sms_logs.id
	BookingID         *uint64   `json:"booking_id,omitempty"`          // sms_logs.booking_id (nullable)
	PhoneNumber       string    `json:"phone_number"`                  // sms_logs.phone_number
	MessageBody       string    `json:"message_body"`                  // sms_logs.message_body
	Direction         string    `json:"direction"`                     // sms_logs.direction
	ProviderMessageID *string   `json:"provider_message_id,omitempty"` // sms_logs.provider_message_id
	Status            string    `json:"status"`                        // sms_logs.status
	CreatedAt         time.Time `json:"created_at"`                    // sms_logs.created_at
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	SmsStatusReceived = "received"
	SmsStatusSent     = "sent"
)
