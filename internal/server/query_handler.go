// Package server implements DNS protocol servers for UDP and TCP.
//
// Goroutine Model:
//
// The server spawns multiple goroutines for handling incoming queries:
//   - UDPServer: 1 receiver + N workers per CPU core
//   - TCPServer: 1 listener per CPU core + 1 handler per active connection
//
// All goroutines are coordinated through a shared context:
//   - Context is cancelled on shutdown signal (SIGINT/SIGTERM)
//   - All goroutines check context regularly and exit cleanly
//   - No long-lived blocking operations without context awareness
//
// Error Handling:
//
// Errors are wrapped with context using fmt.Errorf("...: %w", err) throughout.
// This preserves error chains while adding operational context.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/resolver"
)

// Resolver is the query resolution entry point a QueryHandler drives.
// *resolver.Pipeline satisfies this; tests substitute lighter fakes.
type Resolver interface {
	Resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error)
}

// QueryHandler processes DNS queries through a resolver and handles
// timeouts and error conditions.
type QueryHandler struct {
	Logger   *slog.Logger  // Optional logger for debug output
	Resolver Resolver      // The resolver pipeline to process queries
	Timeout  time.Duration // Maximum time for query resolution (default: 4s)
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte        // Serialized DNS response
	Source        string        // Origin of response (cache, upstream, error type)
	Parsed        dnsmsg.Packet // Parsed request (if ParsedOK is true)
	ParsedOK      bool          // Whether the request was successfully parsed
}

// Handle processes a DNS request and returns a response.
//
// Processing steps:
//  1. Parse the raw request bytes
//  2. Forward to resolver with timeout
//  3. Answer a parse error with FORMERR, and a timeout, cancellation or
//     resolver failure with SERVFAIL
//  4. Log request details at debug level
//
// The context is checked for cancellation (e.g., server shutdown).
func (h *QueryHandler) Handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	// Step 1: Parse request
	parsed, err := dnsmsg.ParseRequestBounded(reqBytes)
	if err != nil {
		return h.handleParseError(reqBytes)
	}

	// Extract question info for logging
	qname, qtype := extractQuestionInfo(parsed)

	// Step 2: Resolve with timeout
	result := h.resolveWithTimeout(ctx, parsed, reqBytes)

	// Step 3: Log at debug level
	h.logRequest(ctx, transport, src, parsed, qname, qtype, len(reqBytes), result.Source)

	return HandleResult{
		ResponseBytes: result.Wire,
		Source:        result.Source,
		Parsed:        parsed,
		ParsedOK:      true,
	}
}

// handleParseError attempts to build an error response from a malformed request.
// Returns FORMERR if the header/question could be extracted, or nil if not.
func (h *QueryHandler) handleParseError(reqBytes []byte) HandleResult {
	resp := tryBuildErrorFromRaw(reqBytes, uint16(dnsmsg.RCodeFormErr))
	if resp == nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error", ParsedOK: false}
	}
	return HandleResult{ResponseBytes: resp, Source: "formerr", ParsedOK: false}
}

// extractQuestionInfo extracts the QNAME and QTYPE from a parsed request.
func extractQuestionInfo(parsed dnsmsg.Packet) (string, int) {
	qname := "<no-question>"
	qtype := -1
	if len(parsed.Questions) > 0 {
		qname = parsed.Questions[0].Name
		qtype = int(parsed.Questions[0].Type)
	}
	return qname, qtype
}

// buildQuery turns a parsed request into the resolver.Query the pipeline
// expects, defaulting to an empty question when the request carries none
// (the pipeline then falls through to the core layer, which surfaces a
// protocol error on marshal rather than here).
func buildQuery(parsed dnsmsg.Packet, reqBytes []byte) resolver.Query {
	q := resolver.Query{Request: parsed}
	if len(parsed.Questions) > 0 {
		first := parsed.Questions[0]
		q.Domain = first.Name
		q.Type = dnsmsg.RecordType(first.Type)
		q.Class = dnsmsg.RecordClass(first.Class)
	}
	return q
}

// resolveWithTimeout runs the resolver with a timeout.
// Returns SERVFAIL on timeout, cancellation, or resolver error.
//
// Design note: This spawns a goroutine per query to enforce timeout without blocking
// the worker pool. An alternative design would make the pipeline context-aware and
// timeout internally, but that would require every layer to handle context
// cancellation correctly. The current approach keeps timeout enforcement isolated here.
//
// Goroutine lifecycle: Spawned per query, exits when the resolver returns.
// On timeout or cancellation this function returns without waiting for it;
// the channel's one-slot buffer lets the late send complete. The channel is
// never closed.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, parsed dnsmsg.Packet, reqBytes []byte) resolver.Resolution {
	resCh := make(chan struct {
		res resolver.Resolution
		err error
	}, 1)
	go func() {
		res, err := h.Resolver.Resolve(ctx, buildQuery(parsed, reqBytes))
		resCh <- struct {
			res resolver.Resolution
			err error
		}{res: res, err: err}
	}()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return h.buildErrorResult(parsed, "shutdown", dnsmsg.RCodeServFail)
	case <-timer.C:
		return h.buildErrorResult(parsed, "timeout", dnsmsg.RCodeServFail)
	case r := <-resCh:
		if r.err != nil {
			return h.buildErrorResult(parsed, "servfail", dnsmsg.RCodeServFail)
		}
		return r.res
	}
}

// buildErrorResult builds an error response for a given parsed packet.
func (h *QueryHandler) buildErrorResult(parsed dnsmsg.Packet, source string, rcode dnsmsg.RCode) resolver.Resolution {
	return resolver.Resolution{
		Wire:   mustMarshal(dnsmsg.BuildErrorResponse(parsed, uint16(rcode))),
		Source: source,
	}
}

// logRequest logs DNS request details at debug level.
func (h *QueryHandler) logRequest(
	ctx context.Context,
	transport, src string,
	parsed dnsmsg.Packet,
	qname string,
	qtype int,
	reqLen int,
	source string,
) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.Logger.DebugContext(
		ctx,
		"dns request",
		"transport", transport,
		"src", src,
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// mustMarshal serializes a DNS packet, returning nil on error.
func mustMarshal(p dnsmsg.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

// tryBuildErrorFromRaw attempts to construct an error response from raw bytes.
// This is used when request parsing fails but we can still extract enough
// information (transaction ID, question) to build a valid error response.
//
// Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode uint16) []byte {
	off := 0
	h, err := dnsmsg.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	// Try to include the question in the error response
	var questions []dnsmsg.Question
	if h.QDCount > 0 {
		q, err := dnsmsg.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = make([]dnsmsg.Question, 1)
			questions[0] = q
		}
	}

	p := dnsmsg.Packet{Header: dnsmsg.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, _ := dnsmsg.BuildErrorResponse(p, rcode).Marshal()
	return b
}
