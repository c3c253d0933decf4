package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", NewNetworkError("u", errors.New("reset")), true},
		{"wrapped network", fmt.Errorf("page: %w", NewNetworkError("u", errors.New("reset"))), true},
		{"404", NewStatusError("u", http.StatusNotFound), false},
		{"429", NewStatusError("u", http.StatusTooManyRequests), true},
		{"503", NewStatusError("u", http.StatusServiceUnavailable), true},
		{"blocked", &FetchError{Kind: KindBlocked, URL: "u"}, false},
		{"canceled", NewNetworkError("u", context.Canceled), false},
		{"download network", &DownloadError{Kind: KindNetwork}, true},
		{"download io", &DownloadError{Kind: KindIO}, false},
		{"download status", &DownloadError{Kind: KindHTTPStatus, StatusCode: 500}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStatusCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 404, StatusCodeOf(fmt.Errorf("x: %w", NewStatusError("u", 404))))
	assert.Equal(t, 502, StatusCodeOf(&DownloadError{Kind: KindHTTPStatus, StatusCode: 502}))
	assert.Zero(t, StatusCodeOf(errors.New("boom")))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fetch http://x: http status 500", NewStatusError("http://x", 500).Error())
	assert.Contains(t, NewNetworkError("http://x", errors.New("reset")).Error(), "network: reset")
	de := &DownloadError{Kind: KindIO, URL: "http://x/a.jpg", Key: "1/2/a.jpg", Err: errors.New("disk full")}
	assert.Equal(t, "download http://x/a.jpg to 1/2/a.jpg: io: disk full", de.Error())
	assert.True(t, IsSuccessStatus(299))
	assert.False(t, IsSuccessStatus(300))
}
