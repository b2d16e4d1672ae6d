// Package models defines messaging channel types for ScamPipe.
package models

// InboundMessage is one message received from a scammer over a delivery
// channel (WhatsApp, SMS webhook).
type InboundMessage struct {
	From string `json:"from"` // sender identifier, E.164 for phone channels
	Body string `json:"body"`
	Time int64  `json:"time"` // unix seconds
}
