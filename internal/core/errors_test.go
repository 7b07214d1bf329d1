package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
	if got := err.Error(); got != "[validation] CODE: message: root" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Category: ErrCatExecution, Code: "X", Message: "msg"}
	err.WithDetail("k", "v")
	if err.Details == nil || err.Details["k"] != "v" {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories(t *testing.T) {
	if ErrValidation("C", "m").Retryable {
		t.Fatalf("validation should not be retryable")
	}
	if ErrGuardrail("C", "m").Retryable {
		t.Fatalf("guardrail should not be retryable")
	}
	if ErrAgent(CodeAgentFailed, "m").Retryable {
		t.Fatalf("agent failures should not be retried automatically")
	}
	if !ErrExecution("C", "m").Retryable {
		t.Fatalf("execution should be retryable")
	}
	if !ErrTimeout("m").Retryable {
		t.Fatalf("timeout should be retryable")
	}
	if !ErrRateLimit("m").Retryable {
		t.Fatalf("rate limit should be retryable")
	}
	if !ErrNetwork("C", "m").Retryable {
		t.Fatalf("network should be retryable")
	}
	if ErrAuth("m").Retryable {
		t.Fatalf("auth should not be retryable")
	}
}

func TestErrAgentNotRegistered(t *testing.T) {
	err := ErrAgentNotRegistered("fnancial")
	if err.Category != ErrCatRegistry || err.Code != CodeAgentNotRegistered {
		t.Fatalf("unexpected error %v", err)
	}
	if err.Details["agent"] != "fnancial" {
		t.Fatalf("expected agent detail, got %v", err.Details)
	}
}

func TestIsGuardrail(t *testing.T) {
	err := ErrGuardrail(CodeEmptyQuery, "Query cannot be empty")
	if !IsGuardrail(err) {
		t.Fatalf("expected guardrail error")
	}
	wrapped := fmt.Errorf("pipeline: %w", err)
	if !IsGuardrail(wrapped) {
		t.Fatalf("expected wrapped guardrail error to be detected")
	}
	if IsGuardrail(ErrExtraction("bad json")) {
		t.Fatalf("extraction error is not a guardrail error")
	}
	if !strings.HasPrefix(err.Error(), "[guardrail]") {
		t.Fatalf("guardrail errors must carry the guardrail marker, got %q", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	agentErr := ErrAgent(CodeAgentFailed, "Financial Agent failed").WithCause(ErrExtraction("no json"))
	if GetCode(agentErr) != CodeAgentFailed {
		t.Fatalf("expected outermost code")
	}
	if !errors.Is(agentErr, &DomainError{Category: ErrCatExtraction, Code: CodeExtractionFailed}) {
		t.Fatalf("expected extraction error reachable through the chain")
	}
	if GetCode(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for non-domain error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrExecution("X", "m")) {
		t.Fatalf("expected retryable error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected non-domain error to be non-retryable")
	}
}

func TestGetCategory(t *testing.T) {
	if GetCategory(ErrRateLimit("m")) != ErrCatRateLimit {
		t.Fatalf("expected rate_limit category")
	}
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for non-domain error")
	}
	if !IsCategory(ErrAuth("m"), ErrCatAuth) {
		t.Fatalf("expected category match")
	}
}
