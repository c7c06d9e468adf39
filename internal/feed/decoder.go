// Package feed delivers order book updates to the engine, either over
// the exchange WebSocket market channel or by polling the REST book
// endpoint. Both paths emit the same normalized domain.BookEvent stream.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// wire DTOs. The venue serializes all numerics as strings.

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Side    string `json:"side"`
	Size    string `json:"size"`
}

type wireMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp string      `json:"timestamp"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	// price_change messages carry their level updates batched in one of
	// two field names depending on the feed version.
	Changes      []wireChange `json:"changes"`
	PriceChanges []wireChange `json:"price_changes"`
}

// Decode normalizes one raw market-channel payload into discrete book
// events. The venue delivers payloads in two shapes, a single JSON
// object or a batched array of objects, and batches level updates for
// several assets inside one price_change message; Decode flattens all
// of that into per-token events. Unknown event types are skipped, not
// errors: the market channel also carries trade prints and tick size
// notices the book does not consume.
func Decode(raw []byte) ([]domain.BookEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var msgs []wireMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("feed: decode batch: %w", err)
		}
	} else {
		var m wireMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("feed: decode message: %w", err)
		}
		msgs = []wireMessage{m}
	}

	var events []domain.BookEvent
	for _, m := range msgs {
		evs, err := m.events()
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (m wireMessage) events() ([]domain.BookEvent, error) {
	seq := parseSeq(m.Timestamp)
	ts := time.UnixMilli(int64(seq))

	switch m.EventType {
	case string(domain.BookEventSnapshot):
		bids, err := parseLevels(m.Bids)
		if err != nil {
			return nil, fmt.Errorf("feed: book bids: %w", err)
		}
		asks, err := parseLevels(m.Asks)
		if err != nil {
			return nil, fmt.Errorf("feed: book asks: %w", err)
		}
		return []domain.BookEvent{{
			Type:      domain.BookEventSnapshot,
			TokenID:   m.AssetID,
			Seq:       seq,
			Bids:      bids,
			Asks:      asks,
			Timestamp: ts,
		}}, nil

	case string(domain.BookEventPriceChange):
		changes := m.Changes
		if len(changes) == 0 {
			changes = m.PriceChanges
		}
		events := make([]domain.BookEvent, 0, len(changes))
		for _, c := range changes {
			price, err := strconv.ParseFloat(c.Price, 64)
			if err != nil {
				return nil, fmt.Errorf("feed: price_change price %q: %w", c.Price, err)
			}
			size, err := strconv.ParseFloat(c.Size, 64)
			if err != nil {
				return nil, fmt.Errorf("feed: price_change size %q: %w", c.Size, err)
			}
			tokenID := c.AssetID
			if tokenID == "" {
				tokenID = m.AssetID
			}
			events = append(events, domain.BookEvent{
				Type:      domain.BookEventPriceChange,
				TokenID:   tokenID,
				Seq:       seq,
				Side:      c.Side,
				Price:     price,
				Size:      size,
				Timestamp: ts,
			})
		}
		return events, nil
	}

	return nil, nil
}

func parseLevels(in []wireLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", l.Price, err)
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", l.Size, err)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

// parseSeq derives a monotonic sequence number from the message
// timestamp. Messages without one get seq 0, which bypasses the book's
// staleness guard.
func parseSeq(ts string) uint64 {
	if ts == "" {
		return 0
	}
	n, err := strconv.ParseUint(ts, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
