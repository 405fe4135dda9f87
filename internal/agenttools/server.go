package agenttools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

const (
	serverName      = "perptrader-tools"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// JSON-RPC 2.0 error codes.
const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeToolError      = -32000
)

// Request is one JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

// Response is one JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server speaks JSON-RPC 2.0 over a byte stream, normally stdio. Logging
// goes to stderr; the stream carries protocol frames only.
type Server struct {
	tools  *Toolset
	in     io.Reader
	out    io.Writer
	logger zerolog.Logger
}

// NewServer creates a tool server over the given streams.
func NewServer(tools *Toolset, in io.Reader, out io.Writer) *Server {
	return &Server{
		tools:  tools,
		in:     in,
		out:    out,
		logger: config.NewLogger("agenttools.server"),
	}
}

// maxFrameBytes bounds a single request line.
const maxFrameBytes = 1 << 20

// Run reads newline-delimited requests until EOF or context cancellation.
// A malformed frame is logged and skipped without poisoning the stream;
// a well-formed request always gets a response.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("Tool server listening")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Error().Err(err).Msg("Failed to decode request, frame skipped")
			continue
		}

		s.logger.Debug().
			Str("method", req.Method).
			Str("tool", req.Params.Name).
			Msg("Request received")

		if err := encoder.Encode(s.handle(ctx, &req)); err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading request stream: %w", err)
	}
	s.logger.Info().Msg("Client disconnected")
	return nil
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	resp := &Response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo": map[string]string{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		}

	case "tools/list":
		resp.Result = map[string]interface{}{"tools": toolCatalog()}

	case "tools/call":
		result, err := s.callTool(ctx, req.Params.Name, req.Params.Arguments)
		if err != nil {
			code := codeToolError
			var argErr *argumentError
			if errors.As(err, &argErr) {
				code = codeInvalidParams
			}
			resp.Error = &Error{Code: code, Message: err.Error()}
		} else {
			resp.Result = result
		}

	default:
		resp.Error = &Error{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
	return resp
}

// argumentError marks malformed tool arguments so they map to the
// invalid-params code instead of the generic tool error.
type argumentError struct{ err error }

func (e *argumentError) Error() string { return e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &argumentError{err: fmt.Errorf("invalid arguments: %w", err)}
	}
	return nil
}

func (s *Server) callTool(ctx context.Context, name string, raw json.RawMessage) (interface{}, error) {
	switch name {
	case "analyze_opening_opportunities":
		var args AnalyzeArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.tools.AnalyzeOpeningOpportunities(ctx, args)

	case "calculate_stop_loss":
		var args StopLossArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.tools.CalculateStopLoss(ctx, args)

	case "check_open_position":
		var args StopLossArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.tools.CheckOpenPosition(ctx, args)

	case "update_trailing_stop":
		var args TrailingArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.tools.UpdateTrailingStop(ctx, args)

	case "check_partial_take_profit_opportunity":
		return s.tools.CheckPartialTakeProfit(ctx)

	case "partial_take_profit":
		var args PartialTPArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.tools.ExecutePartialTakeProfit(ctx, args)
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

// toolCatalog describes every tool with its JSON schema.
func toolCatalog() []map[string]interface{} {
	symbolProp := map[string]interface{}{
		"type":        "string",
		"description": "Base symbol from the watch-list (e.g. BTC, ETH)",
	}
	sideProp := map[string]interface{}{
		"type":        "string",
		"enum":        []string{"long", "short"},
		"description": "Position side",
	}

	return []map[string]interface{}{
		{
			"name":        "analyze_opening_opportunities",
			"description": "Scan the watch-list, classify regimes, and rank scored opening opportunities",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbols": map[string]interface{}{
						"type":        "array",
						"items":       map[string]string{"type": "string"},
						"description": "Symbols to analyze (default: configured watch-list)",
					},
					"min_score": map[string]interface{}{
						"type":        "number",
						"description": "Minimum opportunity score (default: configured)",
					},
					"max_results": map[string]interface{}{
						"type":        "number",
						"description": "Maximum opportunities returned (default: configured)",
					},
					"include_open_positions": map[string]interface{}{
						"type":        "boolean",
						"description": "Include symbols with open positions",
						"default":     false,
					},
				},
			},
		},
		{
			"name":        "calculate_stop_loss",
			"description": "Calculate the hybrid ATR/structural stop for a prospective entry",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol":      symbolProp,
					"side":        sideProp,
					"entry_price": map[string]interface{}{"type": "number"},
					"timeframe": map[string]interface{}{
						"type":        "string",
						"description": "Candle interval (default: preset primary)",
					},
				},
				"required": []string{"symbol", "side", "entry_price"},
			},
		},
		{
			"name":        "check_open_position",
			"description": "Run the stop-quality open gate for a prospective entry",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol":      symbolProp,
					"side":        sideProp,
					"entry_price": map[string]interface{}{"type": "number"},
				},
				"required": []string{"symbol", "side", "entry_price"},
			},
		},
		{
			"name":        "update_trailing_stop",
			"description": "Recompute the trailing stop for an open position and report whether it should tighten",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol":            symbolProp,
					"side":              sideProp,
					"entry_price":       map[string]interface{}{"type": "number"},
					"current_price":     map[string]interface{}{"type": "number"},
					"current_stop_loss": map[string]interface{}{"type": "number"},
				},
				"required": []string{"symbol", "side", "entry_price", "current_price", "current_stop_loss"},
			},
		},
		{
			"name":        "check_partial_take_profit_opportunity",
			"description": "Report the take-profit ladder state of every open position",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			"name":        "partial_take_profit",
			"description": "Execute a pending take-profit stage on an open position",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol": symbolProp,
					"stage": map[string]interface{}{
						"type":        "number",
						"description": "Ladder stage (1-3)",
					},
				},
				"required": []string{"symbol", "stage"},
			},
		},
	}
}
