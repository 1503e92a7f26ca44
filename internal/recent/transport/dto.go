// Package transport defines the HTTP wire types for the recent-contacts
// module.
package transport

import (
	"time"

	"commhistory_backend/internal/recent/domain"
)

// CreateEventRequest is the payload for recording a communication event.
type CreateEventRequest struct {
	AccountID string    `json:"accountId" validate:"required"`
	Address   string    `json:"address" validate:"required"`
	Category  string    `json:"category" validate:"required,oneof=call voicemail message"`
	Direction string    `json:"direction" validate:"omitempty,oneof=inbound outbound"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Snippet   string    `json:"snippet"`
}

// ToRecord converts the request to its storage form.
func (r CreateEventRequest) ToRecord() domain.EventRecord {
	rec := domain.EventRecord{
		AccountID: r.AccountID,
		Address:   r.Address,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Snippet:   r.Snippet,
	}

	switch r.Category {
	case "call":
		rec.Category = domain.CategoryCall
	case "voicemail":
		rec.Category = domain.CategoryVoicemail
	case "message":
		rec.Category = domain.CategoryMessage
	}

	switch r.Direction {
	case "inbound":
		rec.Direction = domain.DirectionInbound
	case "outbound":
		rec.Direction = domain.DirectionOutbound
	}

	return rec
}

// EventResponse is the wire form of a stored event.
type EventResponse struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Address   string    `json:"address"`
	Category  string    `json:"category"`
	Direction string    `json:"direction,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Snippet   string    `json:"snippet,omitempty"`
}

// EventResponseFrom converts a record to its wire form.
func EventResponseFrom(rec domain.EventRecord) EventResponse {
	resp := EventResponse{
		ID:        rec.ID.String(),
		AccountID: rec.AccountID,
		Address:   rec.Address,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Snippet:   rec.Snippet,
	}

	switch rec.Category {
	case domain.CategoryCall:
		resp.Category = "call"
	case domain.CategoryVoicemail:
		resp.Category = "voicemail"
	case domain.CategoryMessage:
		resp.Category = "message"
	default:
		resp.Category = "unknown"
	}

	switch rec.Direction {
	case domain.DirectionInbound:
		resp.Direction = "inbound"
	case domain.DirectionOutbound:
		resp.Direction = "outbound"
	}

	return resp
}

// RowResponse is one entry of the aggregated collection.
type RowResponse struct {
	Event     EventResponse `json:"event"`
	ContactID string        `json:"contactId"`
}

// SnapshotResponse is the aggregated collection plus resolving state.
type SnapshotResponse struct {
	Items     []RowResponse `json:"items"`
	Resolving bool          `json:"resolving"`
}

// DeltaMessage is one structural change streamed over SSE.
type DeltaMessage struct {
	Type      string `json:"type"` // rows_inserted | rows_removed | row_updated | resolving_changed
	Start     int    `json:"start,omitempty"`
	End       int    `json:"end,omitempty"`
	Index     int    `json:"index,omitempty"`
	Resolving bool   `json:"resolving,omitempty"`
}
