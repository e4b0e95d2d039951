package gate

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInterceptorSettlesExactlyOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	settleCalls := 0
	interceptor := newSettlementInterceptor(rec, func() bool {
		settleCalls++
		return true
	})

	// A sloppy handler: redundant status writes and multiple body writes.
	interceptor.WriteHeader(http.StatusCreated)
	interceptor.WriteHeader(http.StatusTeapot)
	interceptor.Write([]byte("part one "))
	interceptor.Write([]byte("part two"))
	interceptor.finalize()

	if settleCalls != 1 {
		t.Errorf("settle calls = %d, want exactly 1", settleCalls)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, first WriteHeader must win", rec.Code)
	}
	if rec.Body.String() != "part one part two" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestInterceptorCommitsOnFirstWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	settleCalls := 0
	interceptor := newSettlementInterceptor(rec, func() bool {
		settleCalls++
		return true
	})

	io.WriteString(interceptor, "hello")
	interceptor.finalize()

	if settleCalls != 1 {
		t.Errorf("settle calls = %d, want 1", settleCalls)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("implicit status = %d, want 200", rec.Code)
	}
}

func TestInterceptorFinalizeCommitsSilentHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	settleCalls := 0
	interceptor := newSettlementInterceptor(rec, func() bool {
		settleCalls++
		return true
	})

	// The handler returned without touching the writer.
	interceptor.finalize()

	if settleCalls != 1 {
		t.Errorf("settle calls = %d, want 1", settleCalls)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestInterceptorDiscardsBodyAfterFailedSettlement(t *testing.T) {
	rec := httptest.NewRecorder()
	interceptor := newSettlementInterceptor(rec, func() bool {
		// Settlement failed; the real settle closure has already written
		// its error response to the underlying writer.
		io.WriteString(rec, `{"code":"SETTLEMENT_ERROR"}`)
		return false
	})

	interceptor.WriteHeader(http.StatusOK)
	n, err := interceptor.Write([]byte("handler payload"))
	if err != nil || n != len("handler payload") {
		t.Errorf("discarded write should report success, got n=%d err=%v", n, err)
	}
	interceptor.finalize()

	if rec.Body.String() != `{"code":"SETTLEMENT_ERROR"}` {
		t.Errorf("handler payload leaked past failed settlement: %q", rec.Body.String())
	}
}

func TestInterceptorFlushCommitsFirst(t *testing.T) {
	rec := httptest.NewRecorder()
	settleCalls := 0
	interceptor := newSettlementInterceptor(rec, func() bool {
		settleCalls++
		return true
	})

	interceptor.Flush()
	interceptor.Flush()

	if settleCalls != 1 {
		t.Errorf("settle calls = %d, want 1", settleCalls)
	}
	if !rec.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
}

func TestReplayCache(t *testing.T) {
	cache := newReplayCache(2)

	if cache.seen("proof-a") {
		t.Error("unrecorded proof reported as seen")
	}
	cache.remember("proof-a")
	if !cache.seen("proof-a") {
		t.Error("recorded proof not detected")
	}

	// Recording the same proof twice must not occupy a second slot.
	cache.remember("proof-a")
	cache.remember("proof-b")
	if !cache.seen("proof-a") || !cache.seen("proof-b") {
		t.Error("cache lost an entry before reaching its limit")
	}

	// Inserting a third proof evicts the oldest.
	cache.remember("proof-c")
	if cache.seen("proof-a") {
		t.Error("oldest proof not evicted at the limit")
	}
	if !cache.seen("proof-b") || !cache.seen("proof-c") {
		t.Error("recent proof forgotten too early")
	}
}
