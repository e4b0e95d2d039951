package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/registry"
)

// handleListTools serves the capability listing: the read-only projection
// of every registered tool.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Metadata())
}

// handleInvoke dispatches a gated tool invocation.
//
// Ordering is deliberate: input is schema-validated before the price is
// resolved, so a function-valued price only ever sees validated input, and
// a malformed request fails free of charge. Verification then precedes the
// handler; settlement follows it.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tool, ok := s.registry.Get(name)
	if !ok {
		respondError(w, tollgate.NewError(tollgate.CodeToolNotFound,
			fmt.Sprintf("no tool registered under %q", name), false, tollgate.ErrToolNotFound))
		return
	}

	input, err := decodeInput(r)
	if err != nil {
		respondError(w, tollgate.NewError(tollgate.CodeValidationError, "request body is not a JSON object", false, err))
		return
	}

	if err := tool.InputSchema.Validate(input); err != nil {
		respondError(w, tollgate.NewError(tollgate.CodeValidationError, "input does not match tool schema", false, err))
		return
	}

	// Bypass mode skips price resolution entirely along with the gate.
	var price tollgate.Price
	if !s.gate.Bypassed() {
		price, err = tool.Pricing.ResolvePrice(r.Context(), input)
		if err != nil {
			respondError(w, tollgate.NewError(tollgate.CodePriceCalculation, "could not price invocation", false, err))
			return
		}
	}

	s.gate.Serve(w, r, price, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.execute(r.Context(), w, tool, input)
	}))
}

// execute runs the tool handler and validates its output. It runs behind
// the gate: payment has been verified, so execution failures are
// retriable. The caller already paid and is owed a completed attempt or a
// clear retriable signal.
func (s *Server) execute(ctx context.Context, w http.ResponseWriter, tool *registry.Tool, input map[string]any) {
	result, err := runHandler(ctx, tool, input)
	if err != nil {
		s.log.Warn("tool execution failed", "tool", tool.Name, "error", err)
		respondError(w, tollgate.NewError(tollgate.CodeExecutionError, "tool execution failed", true, err))
		return
	}

	if tool.OutputSchema != nil {
		if err := validateOutput(tool, result); err != nil {
			// A declared output shape the handler does not meet is a
			// defect in the tool, not a transient failure and not the
			// caller's fault.
			s.log.Error("tool output violates declared schema", "tool", tool.Name, "error", err)
			respondError(w, tollgate.NewError(tollgate.CodeOutputValidation, "tool returned malformed output", false, err))
			return
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// runHandler invokes the tool handler, converting panics into errors so
// one tool's failure cannot take down concurrent invocations.
func runHandler(ctx context.Context, tool *registry.Tool, input map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, input)
}

func validateOutput(tool *registry.Tool, result any) error {
	obj, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("result is %T, want object", result)
	}
	return tool.OutputSchema.Validate(obj)
}

// decodeInput parses the request body into a JSON object. An empty body is
// an empty input, for tools with no required fields.
func decodeInput(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}
