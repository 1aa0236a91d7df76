package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"plain", New(KindMalformedAttachment, "", "name without path"), "malformed_attachment error: name without path"},
		{"with op", New(KindFilesystem, "save", "disk full"), "filesystem error: save: disk full"},
		{"with status", Status("fetch posts", 502), "status error: fetch posts: unexpected response status (status 502)"},
		{"wrapped", Wrap(KindTransport, "get", stderrors.New("connection reset")), "transport error: get: failed: connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindTransport, "get", nil))
}

func TestKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("download batch for alice/patreon: %w", Status("download", 429))

	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, KindGeneric, KindOf(stderrors.New("other")))
	assert.False(t, IsRateLimited(nil))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("eof")
	err := Wrap(KindMalformedResponse, "decode", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{Wrap(KindTransport, "get", stderrors.New("timeout")), true},
		{Status("get", 500), true},
		{Status("get", 503), true},
		{Status("get", 404), false},
		{Status("get", 403), false},
		{Status("get", 429), false},
		{New(KindMalformedResponse, "decode", "bad json"), false},
		{stderrors.New("plain"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestGenericWrapperKeepsCause(t *testing.T) {
	limited := Status("download", 429)
	err := fmt.Errorf("update stopped: %w", Wrap(KindGeneric, "download batch", limited))

	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsKind(err, KindGeneric))
	assert.False(t, IsRetryable(err))

	transient := Wrap(KindGeneric, "fetch page", Status("get", 502))
	assert.Equal(t, KindStatus, KindOf(transient))
	assert.True(t, IsRetryable(transient))

	assert.Equal(t, KindGeneric, KindOf(Wrap(KindGeneric, "op", stderrors.New("plain"))))
}
