package tools

import (
	"context"
	"testing"

	"github.com/koopa0/aegis/internal/security"
)

type echoInput struct {
	Value string `json:"value"`
}

func newTestDispatcher(t *testing.T, cfg security.RateLimitConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(security.NewRateLimiter(cfg), testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestDispatch(t *testing.T) {
	d := newTestDispatcher(t, security.RateLimitConfig{})

	err := Register(d, "echo", func(_ context.Context, in echoInput) (Result, error) {
		return Result{Status: StatusSuccess, Data: in.Value}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := d.Dispatch(context.Background(), "session-1", "echo", echoInput{Value: "hi"})
	if err != nil {
		t.Fatalf("Dispatch returned Go error: %v", err)
	}
	if res.Status != StatusSuccess || res.Data != "hi" {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, security.RateLimitConfig{})

	res, err := d.Dispatch(context.Background(), "session-1", "nope", nil)
	if err != nil {
		t.Fatalf("Dispatch returned Go error: %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeNotFound {
		t.Errorf("result = %+v, want NotFound", res)
	}
}

func TestDispatchInvalidInputType(t *testing.T) {
	d := newTestDispatcher(t, security.RateLimitConfig{})
	if err := Register(d, "echo", func(_ context.Context, in echoInput) (Result, error) {
		return Result{Status: StatusSuccess}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := d.Dispatch(context.Background(), "session-1", "echo", 42)
	if err != nil {
		t.Fatalf("Dispatch returned Go error: %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("result = %+v, want ValidationError", res)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	d := newTestDispatcher(t, security.RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         1,
	})
	if err := Register(d, "echo", func(_ context.Context, in echoInput) (Result, error) {
		return Result{Status: StatusSuccess}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if res, _ := d.Dispatch(ctx, "session-1", "echo", echoInput{}); res.Status != StatusSuccess {
		t.Fatalf("first call = %+v", res)
	}

	res, err := d.Dispatch(ctx, "session-1", "echo", echoInput{})
	if err != nil {
		t.Fatalf("Dispatch returned Go error: %v", err)
	}
	if res.Status != StatusError || res.Error.Code != ErrCodeRateLimited {
		t.Fatalf("second call = %+v, want RateLimited", res)
	}
	details := res.Error.Details.(map[string]any)
	if details["retry_after"] == "" {
		t.Error("retry_after detail missing")
	}

	// Another session is unaffected.
	if res, _ := d.Dispatch(ctx, "session-2", "echo", echoInput{}); res.Status != StatusSuccess {
		t.Errorf("other session = %+v, want success", res)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	d := newTestDispatcher(t, security.RateLimitConfig{})
	handler := func(_ context.Context, in echoInput) (Result, error) {
		return Result{Status: StatusSuccess}, nil
	}

	if err := Register(d, "echo", handler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(d, "echo", handler); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := Register(d, "", handler); err == nil {
		t.Error("empty tool name accepted")
	}
}
