package domain

import "time"

// Outcome identifies one side of an UP/DOWN pair market.
type Outcome string

const (
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)

// Opposite returns the other side of the pair.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Market is one UP/DOWN pair market instance. At most one market is
// current at a time; it is replaced when it expires and discovery
// resolves the next one.
type Market struct {
	ID        string // CLOB market (condition) id
	Slug      string // e.g. "btc-updown-15m-1735689600"
	UpToken   string // ERC-1155 token id for the UP outcome
	DownToken string // ERC-1155 token id for the DOWN outcome
	ExpiresAt time.Time
	NegRisk   bool // venue settles the pair as a negated-risk compound market
}

// Token returns the token id for the given outcome.
func (m Market) Token(o Outcome) string {
	if o == OutcomeUp {
		return m.UpToken
	}
	return m.DownToken
}

// Outcome returns which side of the pair the given token id belongs to,
// and false if the token is not part of this market.
func (m Market) Outcome(tokenID string) (Outcome, bool) {
	switch tokenID {
	case m.UpToken:
		return OutcomeUp, true
	case m.DownToken:
		return OutcomeDown, true
	}
	return "", false
}

// Expired reports whether the market has passed its expiry at the given time.
func (m Market) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}
