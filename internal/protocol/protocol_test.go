package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDecoder struct{}

func (nopDecoder) Decode(buf []byte) (WireEvent, int, error) {
	return WireEvent{}, len(buf), nil
}

func TestRegisterAndLookup(t *testing.T) {
	Register("test-proto", func() Decoder { return nopDecoder{} })

	p, err := Lookup("test-proto")
	require.NoError(t, err)
	assert.Equal(t, "test-proto", p.Name())
	assert.NotNil(t, p.NewDecoder())
	assert.Contains(t, Protocols(), "test-proto")
}

func TestLookupUnknownProtocol(t *testing.T) {
	_, err := Lookup("no-such-proto")
	assert.ErrorIs(t, err, ErrProtocolNotFound)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-proto-dup", func() Decoder { return nopDecoder{} })
	assert.Panics(t, func() {
		Register("test-proto-dup", func() Decoder { return nopDecoder{} })
	})
}

func TestRegisterNilFactoryPanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("test-proto-nil", nil)
	})
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrUnknownMessageType, StatusUnknownMessageType},
		{fmt.Errorf("%w: tag 0x5a", ErrUnknownMessageType), StatusUnknownMessageType},
		{ErrTruncatedPacket, StatusTruncatedPacket},
		{errors.New("boom"), StatusUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err))
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "unknown message type", StatusUnknownMessageType.String())
	assert.Equal(t, "truncated packet", StatusTruncatedPacket.String())
	assert.Equal(t, "unknown error", StatusUnknown.String())
	assert.Equal(t, "unknown error", Status(-77).String())
}

func TestPriceDecimal(t *testing.T) {
	assert.Equal(t, "100.1500", Price(1001500).Decimal(4).String())
	assert.Equal(t, "0.0001", Price(1).Decimal(4).String())
	assert.Equal(t, "42", Price(42).Decimal(0).String())
}

func TestSide(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, "buy", Buy.String())
	assert.Equal(t, "sell", Sell.String())
}

func TestTradingStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "halted", StateHalted.String())
	assert.Equal(t, "quotation-only", StateQuotationOnly.String())
	assert.Equal(t, "trading", StateTrading.String())
	assert.Equal(t, "auction", StateAuction.String())
	assert.Equal(t, "unknown", TradingState(200).String())
}
