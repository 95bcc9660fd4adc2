package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeConcurrentWrite, status: http.StatusServiceUnavailable, publicMsg: "concurrent update in progress, retry the request", retryable: true, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeInternal, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeInternal {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeInsufficientStock, "not enough"))
	if got := As(err); got == nil || got.Code() != CodeInsufficientStock {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeInsufficientStock) {
		t.Fatalf("IsCode should match through wrapping")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "stock_records_quantity_check",
		TableName:      "stock_records",
		Message:        "new row violates check constraint",
	}
	err := Wrap(CodeInternal, fmt.Errorf("update stock: %w", pgErr), "store failure")

	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("expected code in dump, got %s", dump.Code)
	}
	if dump.PGCode != "23514" || dump.PGConstraint != "stock_records_quantity_check" || dump.PGTable != "stock_records" {
		t.Fatalf("unexpected pg fields: %+v", dump)
	}
	if len(dump.Chain) < 3 {
		t.Fatalf("expected wrapped chain, got %v", dump.Chain)
	}
	if got := SQLState(err); got != "23514" {
		t.Fatalf("expected sqlstate 23514, got %q", got)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("confirm: %w", Newf(CodeStateConflict, "reservation %s is %s", "r-1", "expired"))
	if !stdErrors.Is(err, New(CodeStateConflict, "")) {
		t.Fatalf("code-only sentinel should match")
	}
	if stdErrors.Is(err, New(CodeStateConflict, "other message")) {
		t.Fatalf("sentinel with a different message should not match")
	}
	if stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatalf("different code should not match")
	}
	if got := As(err).Message(); got != "reservation r-1 is expired" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":              {nil, false},
		"untyped":          {stdErrors.New("connection reset"), true},
		"concurrent write": {Wrap(CodeConcurrentWrite, stdErrors.New("deadlock"), "retry"), true},
		"dependency":       {New(CodeDependency, "redis down"), true},
		"not found":        {New(CodeNotFound, "no reservation"), false},
		"state conflict":   {fmt.Errorf("x: %w", New(CodeStateConflict, "expired")), false},
	}
	for name, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", name, tc.want, got)
		}
	}
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("migrate: %w", &pq.Error{Code: "42P07", Table: "stock_records", Message: "relation already exists"})
	dump := Dump(err)
	if dump.Code != "" {
		t.Fatalf("untyped error should not carry a code, got %s", dump.Code)
	}
	if dump.PGCode != "42P07" || dump.PGTable != "stock_records" {
		t.Fatalf("unexpected pg fields: %+v", dump)
	}
	if SQLState(stdErrors.New("plain")) != "" || SQLState(nil) != "" {
		t.Fatalf("non-postgres errors have no sqlstate")
	}
	if !CodeRateLimit.Known() || Code("NOPE").Known() {
		t.Fatalf("Known mismatch")
	}
}
