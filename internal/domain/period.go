package domain

import "unicode/utf8"

// Period is one scoring group in the game, mirrored to the periods table.
type Period struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Points   int64  `json:"points"`
	Chips    int64  `json:"chips"`
}

func (p Period) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidPeriodID
	}
	if err := ValidateNickname(p.Nickname); err != nil {
		return err
	}
	if p.Chips < 0 {
		return ErrInvalidChips
	}
	return nil
}

func ValidateNickname(nickname string) error {
	if n := utf8.RuneCountInString(nickname); n == 0 || n > 64 {
		return ErrInvalidNickname
	}
	return nil
}

// Payload returns the full row, as used by an insert.
func (p Period) Payload() Payload {
	return Payload{
		"id":       p.ID,
		"nickname": p.Nickname,
		"points":   p.Points,
		"chips":    p.Chips,
	}
}

// CreatePeriodRequest is the inbound payload for a new period.
type CreatePeriodRequest struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Points   int64  `json:"points"`
	Chips    int64  `json:"chips"`
}

// UpdatePeriodRequest carries a partial change; nil fields are left alone.
type UpdatePeriodRequest struct {
	Nickname    *string `json:"nickname,omitempty"`
	PointsDelta *int64  `json:"points_delta,omitempty"`
	Chips       *int64  `json:"chips,omitempty"`
}

// DropRequest records a ball landing in a bin.
type DropRequest struct {
	BinIndex int   `json:"bin_index"`
	Points   int64 `json:"points"`
}

// DropEvent is the outcome of one recorded drop. PeriodID and PointsApplied
// are nil when no period was selected.
type DropEvent struct {
	TS            int64  `json:"ts"`
	PeriodID      *int64 `json:"period_id"`
	BinIndex      int    `json:"bin_index"`
	PointsApplied *int64 `json:"points_applied,omitempty"`
}
