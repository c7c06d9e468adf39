package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarquez/updownbot/internal/domain"
)

func TestDecodeSingleBookSnapshot(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-up",
		"market": "0xcond",
		"timestamp": "1756200600123",
		"bids": [{"price": "0.47", "size": "120"}, {"price": "0.46", "size": "300"}],
		"asks": [{"price": "0.48", "size": "100"}]
	}`)

	events, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.BookEventSnapshot, ev.Type)
	assert.Equal(t, "tok-up", ev.TokenID)
	assert.Equal(t, uint64(1756200600123), ev.Seq)
	require.Len(t, ev.Bids, 2)
	assert.InDelta(t, 0.47, ev.Bids[0].Price, 1e-9)
	assert.InDelta(t, 120.0, ev.Bids[0].Size, 1e-9)
	require.Len(t, ev.Asks, 1)
	assert.InDelta(t, 0.48, ev.Asks[0].Price, 1e-9)
}

func TestDecodeBatchedArray(t *testing.T) {
	// The venue sometimes delivers several messages in one frame.
	raw := []byte(`[
		{"event_type": "book", "asset_id": "tok-up", "timestamp": "100",
		 "bids": [], "asks": [{"price": "0.48", "size": "50"}]},
		{"event_type": "book", "asset_id": "tok-down", "timestamp": "100",
		 "bids": [], "asks": [{"price": "0.51", "size": "80"}]}
	]`)

	events, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "tok-up", events[0].TokenID)
	assert.Equal(t, "tok-down", events[1].TokenID)
}

func TestDecodePriceChangeFansOutPerAsset(t *testing.T) {
	// One price_change message batches level updates for both tokens;
	// the decoder emits one event per change.
	raw := []byte(`{
		"event_type": "price_change",
		"market": "0xcond",
		"timestamp": "200",
		"price_changes": [
			{"asset_id": "tok-up", "price": "0.48", "side": "SELL", "size": "75"},
			{"asset_id": "tok-down", "price": "0.52", "side": "SELL", "size": "0"}
		]
	}`)

	events, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.BookEventPriceChange, events[0].Type)
	assert.Equal(t, "tok-up", events[0].TokenID)
	assert.Equal(t, "SELL", events[0].Side)
	assert.InDelta(t, 0.48, events[0].Price, 1e-9)
	assert.InDelta(t, 75.0, events[0].Size, 1e-9)

	// Zero size removes the level; it still decodes as an event.
	assert.Equal(t, "tok-down", events[1].TokenID)
	assert.Zero(t, events[1].Size)
}

func TestDecodeLegacyPriceChangeShape(t *testing.T) {
	// Older feed versions put the asset on the envelope and the levels
	// under "changes".
	raw := []byte(`{
		"event_type": "price_change",
		"asset_id": "tok-up",
		"timestamp": "300",
		"changes": [{"price": "0.49", "side": "BUY", "size": "10"}]
	}`)

	events, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "tok-up", events[0].TokenID)
	assert.Equal(t, "BUY", events[0].Side)
}

func TestDecodeSkipsUnknownEventTypes(t *testing.T) {
	raw := []byte(`{"event_type": "last_trade_price", "asset_id": "tok-up", "price": "0.48"}`)

	events, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecodeMissingTimestampBypassesSeqGuard(t *testing.T) {
	raw := []byte(`{"event_type": "book", "asset_id": "tok-up", "bids": [], "asks": []}`)

	events, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Seq)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"event_type": "book", "asset_id": "x", "asks": [{"price": "abc", "size": "1"}]}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	events, err := Decode([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, events)
}

type fakeFetcher struct {
	books map[string]domain.BookEvent
	errs  map[string]error
}

func (f *fakeFetcher) GetBook(_ context.Context, tokenID string) (domain.BookEvent, error) {
	if err := f.errs[tokenID]; err != nil {
		return domain.BookEvent{}, err
	}
	return f.books[tokenID], nil
}

func TestFetchPairConcurrent(t *testing.T) {
	fetcher := &fakeFetcher{
		books: map[string]domain.BookEvent{
			"tok-up":   {Type: domain.BookEventSnapshot, TokenID: "tok-up"},
			"tok-down": {Type: domain.BookEventSnapshot, TokenID: "tok-down"},
		},
		errs: map[string]error{},
	}
	poller := NewPoller(fetcher)
	market := domain.Market{UpToken: "tok-up", DownToken: "tok-down"}

	up, down, err := poller.FetchPair(context.Background(), market)
	require.NoError(t, err)
	assert.Equal(t, "tok-up", up.TokenID)
	assert.Equal(t, "tok-down", down.TokenID)
}

func TestFetchPairFailsWhole(t *testing.T) {
	fetcher := &fakeFetcher{
		books: map[string]domain.BookEvent{
			"tok-up": {TokenID: "tok-up"},
		},
		errs: map[string]error{"tok-down": errors.New("timeout")},
	}
	poller := NewPoller(fetcher)
	market := domain.Market{UpToken: "tok-up", DownToken: "tok-down"}

	_, _, err := poller.FetchPair(context.Background(), market)
	assert.Error(t, err)
}
