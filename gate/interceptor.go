package gate

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"net"
	"net/http"
	"sync"
)

// settlementInterceptor wraps the ResponseWriter to intercept the moment
// the wrapped handler commits its response. Settlement runs exactly once at
// that point, before any body bytes reach the client, so a settlement
// failure can still replace the response. The committed flag is the
// one-shot guard: redundant WriteHeader or Write calls never settle twice.
type settlementInterceptor struct {
	w http.ResponseWriter

	// settle performs settlement and reports whether the handler's
	// response may proceed. On failure it has already written the error
	// response to the underlying writer.
	settle func() bool

	committed bool
	hijacked  bool
}

func newSettlementInterceptor(w http.ResponseWriter, settle func() bool) *settlementInterceptor {
	return &settlementInterceptor{w: w, settle: settle}
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// Write without WriteHeader implies 200 OK; commit now.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// After a failed settlement the error response is already on the
	// wire. The handler's payload is silently discarded to avoid a mixed
	// response.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Settlement runs whatever the status: the caller consumed a
	// verified payment slot whether or not the handler succeeded.
	if !i.settle() {
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// finalize commits a handler that returned without writing anything.
// Together with WriteHeader and Write it guarantees settlement runs on
// every exit path, exactly once.
func (i *settlementInterceptor) finalize() {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
}

// Flush implements http.Flusher for streaming handlers. Flushing commits
// the response first, so settlement still precedes the first body bytes.
func (i *settlementInterceptor) Flush() {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	if i.hijacked {
		return
	}
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for connection hijacking.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher for HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// replayCache is a bounded, process-local record of payment proofs this
// instance has already consumed. Best effort only: it does not survive
// restarts and is not shared across instances. The facilitator's nonce
// tracking remains authoritative.
//
// Proofs are recorded only once settlement succeeds. A proof rejected for
// a transient reason stays unrecorded, so the retry the error contract
// advises is not misread as a replay.
type replayCache struct {
	mu    sync.Mutex
	used  map[[32]byte]struct{}
	order [][32]byte
	limit int
}

func newReplayCache(limit int) *replayCache {
	return &replayCache{
		used:  make(map[[32]byte]struct{}, limit),
		limit: limit,
	}
}

// seen reports whether a proof has already been consumed.
func (c *replayCache) seen(proof string) bool {
	digest := sha256.Sum256([]byte(proof))

	c.mu.Lock()
	defer c.mu.Unlock()

	_, dup := c.used[digest]
	return dup
}

// remember records a consumed proof. The oldest entry is evicted once the
// cache is full.
func (c *replayCache) remember(proof string) {
	digest := sha256.Sum256([]byte(proof))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.used[digest]; dup {
		return
	}

	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.used, oldest)
	}

	c.used[digest] = struct{}{}
	c.order = append(c.order, digest)
}
