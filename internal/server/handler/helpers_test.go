package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

func TestStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrNotAllowed, http.StatusForbidden},
		{domain.ErrUnauthorizedSolver, http.StatusForbidden},
		{&domain.PausedError{Gate: domain.GateCommit}, http.StatusServiceUnavailable},
		{domain.ErrZeroCommitment, http.StatusBadRequest},
		{domain.ErrProofRejected, http.StatusBadRequest},
		{&domain.HashMismatchError{}, http.StatusBadRequest},
		{&domain.ClaimsLengthError{Expected: 8, Actual: 7}, http.StatusBadRequest},
		{domain.ErrRoundActive, http.StatusConflict},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{domain.ErrNothingToClaim, http.StatusConflict},
		{&domain.WrongPhaseError{Expected: domain.PhaseCommit, Actual: domain.PhaseReveal}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusFromError(tc.err); got != tc.want {
			t.Errorf("statusFromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestStatusFromErrorWrapped(t *testing.T) {
	err := fmt.Errorf("service: %w", domain.ErrAlreadyFinalized)
	if got := statusFromError(err); got != http.StatusConflict {
		t.Fatalf("wrapped sentinel = %d, want 409", got)
	}
}

func TestParseAddress(t *testing.T) {
	if _, ok := parseAddress("0x00000000000000000000000000000000000000aa"); !ok {
		t.Fatal("valid address rejected")
	}
	for _, bad := range []string{"", "0x123", "not-an-address"} {
		if _, ok := parseAddress(bad); ok {
			t.Errorf("parseAddress(%q) accepted", bad)
		}
	}
}

func TestParseHash(t *testing.T) {
	h, ok := parseHash("0x1100000000000000000000000000000000000000000000000000000000000022")
	if !ok {
		t.Fatal("valid 32-byte hash rejected")
	}
	if h[0] != 0x11 || h[31] != 0x22 {
		t.Fatalf("hash decoded incorrectly: %x", h)
	}

	// 31 bytes and other short values must be rejected.
	for _, bad := range []string{"", "0x1234", "0x11000000000000000000000000000000000000000000000000000000000022"} {
		if _, ok := parseHash(bad); ok {
			t.Errorf("parseHash(%q) accepted", bad)
		}
	}
}

func TestParseListOpts(t *testing.T) {
	cases := []struct {
		url        string
		wantLimit  int
		wantOffset int
	}{
		{"/api/admin/audit", 50, 0},
		{"/api/admin/audit?limit=10&offset=5", 10, 5},
		{"/api/admin/audit?limit=9999", 500, 0},
		{"/api/admin/audit?limit=-1&offset=-2", 50, 0},
		{"/api/admin/audit?limit=abc", 50, 0},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.url, nil)
		opts := parseListOpts(r)
		if opts.Limit != tc.wantLimit || opts.Offset != tc.wantOffset {
			t.Errorf("parseListOpts(%q) = %+v, want limit=%d offset=%d",
				tc.url, opts, tc.wantLimit, tc.wantOffset)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, domain.ErrNotFound)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
}
