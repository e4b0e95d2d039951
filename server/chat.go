package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/chat"
)

// handleChatCompletions proxies a chat request to the completion backend
// behind the payment gate. Registered tools are advertised to the backend
// as invocable capabilities; any tool calls in the backend's answer are
// returned verbatim. The caller invokes them through /tools/{name}/invoke
// and feeds the results into a follow-up turn. Keeping tool execution
// client-driven keeps payment attribution simple: every tool call is
// separately priced and separately gated.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, tollgate.NewError(tollgate.CodeInvalidRequest, "request body is not a valid chat request", false, err))
		return
	}
	if err := validateChatRequest(&req); err != nil {
		respondError(w, tollgate.NewError(tollgate.CodeInvalidRequest, err.Error(), false, nil))
		return
	}

	if s.cfg.Backend == nil {
		respondError(w, tollgate.NewError(tollgate.CodeChatError, "no completion backend configured", false, nil))
		return
	}

	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.proxyChat(w, r, &req)
	})

	// Explicitly free chat skips the gate; bypass skips it inside Serve.
	if s.cfg.ChatFree && !s.gate.Bypassed() {
		proxy.ServeHTTP(w, r)
		return
	}

	var price tollgate.Price
	if !s.gate.Bypassed() {
		var err error
		price, err = s.cfg.ChatPricing.ResolvePrice(r.Context(), &req)
		if err != nil {
			respondError(w, tollgate.NewError(tollgate.CodePriceCalculation, "could not price chat request", false, err))
			return
		}
	}

	s.gate.Serve(w, r, price, proxy)
}

func (s *Server) proxyChat(w http.ResponseWriter, r *http.Request, req *chat.CompletionRequest) {
	outbound := *req
	outbound.Tools = append(s.registryTools(), req.Tools...)

	resp, err := s.cfg.Backend.Complete(r.Context(), &outbound)
	if err != nil {
		var backendErr *chat.BackendError
		if errors.As(err, &backendErr) {
			s.log.Warn("completion backend error", "status", backendErr.StatusCode)
			respondErrorStatus(w, backendErr.StatusCode,
				tollgate.NewError(tollgate.CodeChatError, "completion backend error", true, err))
			return
		}
		s.log.Error("completion backend unreachable", "error", err)
		respondError(w, tollgate.NewError(tollgate.CodeChatError, "completion backend unavailable", true, err))
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// registryTools projects registered tools into function declarations for
// the backend. The handler itself is never advertised.
func (s *Server) registryTools() []chat.Tool {
	metadata := s.registry.Metadata()
	tools := make([]chat.Tool, 0, len(metadata))
	for _, md := range metadata {
		params, err := json.Marshal(md.InputSchema)
		if err != nil {
			s.log.Warn("skipping unserializable tool schema", "tool", md.Name, "error", err)
			continue
		}
		tools = append(tools, chat.Tool{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        md.Name,
				Description: md.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func validateChatRequest(req *chat.CompletionRequest) error {
	if req.Model == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages must be a non-empty array")
	}
	for i, msg := range req.Messages {
		if msg.Role == "" {
			return fmt.Errorf("message %d: role is required", i)
		}
		if msg.Content == nil && len(msg.ToolCalls) == 0 {
			return fmt.Errorf("message %d: content is required", i)
		}
	}
	return nil
}
