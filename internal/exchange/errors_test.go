package exchange

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"bad api key", errors.New("<APIError> code=-2015, msg=Invalid API-key, IP, or permissions for action."), ErrAuth},
		{"bad signature", errors.New("<APIError> code=-1022, msg=Signature for this request is not valid."), ErrAuth},
		{"too many requests", errors.New("<APIError> code=-1003, msg=Too many requests queued."), ErrRateLimited},
		{"margin insufficient", errors.New("<APIError> code=-2019, msg=Margin is insufficient."), ErrInsufficientFunds},
		{"unknown order", errors.New("<APIError> code=-2011, msg=Unknown order sent."), ErrNotFound},
		{"clock skew", errors.New("<APIError> code=-1021, msg=Timestamp for this request is outside of the recvWindow."), ErrTransport},
		{"precision", errors.New("<APIError> code=-1111, msg=Precision is over the maximum defined for this asset."), ErrInvalidArgument},
		{"network timeout", errors.New("Get \"https://fapi.binance.com\": context deadline exceeded (Client.Timeout exceeded)"), ErrTransport},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrTransport},
		{"unknown defaults to transport", errors.New("something odd happened"), ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	inner := Errorf(ErrInsufficientFunds, "margin too low")
	wrapped := fmt.Errorf("placing order: %w", inner)
	assert.Equal(t, ErrInsufficientFunds, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Errorf(ErrTransport, "timeout")))
	assert.True(t, IsRetryable(Errorf(ErrRateLimited, "slow down")))
	assert.False(t, IsRetryable(Errorf(ErrAuth, "bad key")))
	assert.False(t, IsRetryable(Errorf(ErrInvalidArgument, "bad size")))
	assert.False(t, IsRetryable(Errorf(ErrInsufficientFunds, "no margin")))
	assert.False(t, IsRetryable(Errorf(ErrNotFound, "gone")))
	assert.False(t, IsRetryable(Errorf(ErrPriceValidation, "wrong side")))
}

func TestIsClockSkew(t *testing.T) {
	assert.True(t, IsClockSkew(errors.New("<APIError> code=-1021, msg=Timestamp outside recvWindow")))
	assert.False(t, IsClockSkew(errors.New("<APIError> code=-1003, msg=Too many requests")))
	assert.False(t, IsClockSkew(nil))
}
