package domain

import (
	"testing"
	"time"
)

func TestPasteExpiredBoundary(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	p := &Paste{ExpiresAt: exp}

	if p.Expired(exp.Add(-time.Nanosecond)) {
		t.Error("paste expired before its deadline")
	}
	if !p.Expired(exp) {
		t.Error("paste must be gone the instant now reaches ExpiresAt")
	}
	if !p.Expired(exp.Add(time.Second)) {
		t.Error("paste still live past its deadline")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrPasteNotFound, 404},
		{ErrInvalidCode, 400},
		{ErrContentRequired, 400},
		{ErrTextTooLarge, 400},
		{ErrImageTooLarge, 400},
		{ErrImageFormat, 400},
		{ErrRateLimited, 429},
		{ErrCodeSpaceExhausted, 503},
		{ErrStoreUnavailable, 503},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.status {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
