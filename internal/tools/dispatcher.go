package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/aegis/internal/log"
	"github.com/koopa0/aegis/internal/security"
)

// Handler is the type-erased form a registered tool handler is stored as.
// Typed handlers are adapted with Register.
type Handler func(ctx context.Context, input any) (Result, error)

// Dispatcher routes tool calls through the rate limiter and writes the audit
// trail. Every call gets a unique call ID that appears in the start and
// finish log records and in rate-limit denials.
//
// Rate limiting is keyed (session, tool): one chatty session cannot starve
// another, and per-tool limits are enforced independently.
type Dispatcher struct {
	limiter *security.RateLimiter
	logger  log.Logger

	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(limiter *security.RateLimiter, logger log.Logger) (*Dispatcher, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Dispatcher{
		limiter:  limiter,
		logger:   logger,
		handlers: make(map[string]Handler),
	}, nil
}

// Register adds a typed handler under the given tool name. Registration
// happens once at startup before any Dispatch call; the handler map is
// read-only afterwards.
func Register[In any](d *Dispatcher, name string, handler func(context.Context, In) (Result, error)) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	d.handlers[name] = func(ctx context.Context, input any) (Result, error) {
		typed, ok := input.(In)
		if !ok {
			return errorResult(ErrCodeValidation,
				fmt.Sprintf("invalid input type: expected %T, got %T", typed, input), nil), nil
		}
		return handler(ctx, typed)
	}
	return nil
}

// Tools returns the registered tool names.
func (d *Dispatcher) Tools() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named tool for a session. The rate limiter is consulted
// before the handler runs; denials are reported in-band with a retry_after
// detail so the model can back off and retry.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, toolName string, input any) (Result, error) {
	callID := uuid.NewString()
	started := time.Now()

	handler, ok := d.handlers[toolName]
	if !ok {
		return errorResult(ErrCodeNotFound, fmt.Sprintf("unknown tool: %s", toolName), nil), nil
	}

	d.logger.Info("tool call started",
		"call_id", callID,
		"session_id", sessionID,
		"tool", toolName)

	if err := d.limiter.Allow(sessionID, toolName, 1); err != nil {
		var retryAfter time.Duration
		var rlErr *security.RateLimitError
		if errors.As(err, &rlErr) {
			retryAfter = rlErr.RetryAfter
		}
		d.logger.Warn("tool call rate limited",
			"call_id", callID,
			"session_id", sessionID,
			"tool", toolName,
			"retry_after", retryAfter)
		return errorResult(ErrCodeRateLimited,
			fmt.Sprintf("rate limit exceeded for %s: %v", toolName, err),
			map[string]any{"retry_after": retryAfter.String()}), nil
	}

	result, err := handler(ctx, input)
	if err != nil {
		d.logger.Error("tool call failed",
			"call_id", callID,
			"session_id", sessionID,
			"tool", toolName,
			"duration", time.Since(started),
			"error", err)
		return result, err
	}

	d.logger.Info("tool call finished",
		"call_id", callID,
		"session_id", sessionID,
		"tool", toolName,
		"status", result.Status,
		"duration", time.Since(started))
	return result, nil
}
