package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResourceError(t *testing.T) {
	err := NewResourceError("pe1", "loopback address", "no Loopback0 stanza")

	msg := err.Error()
	for _, want := range []string{"loopback address", "pe1", "no Loopback0 stanza"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q: %s", want, msg)
		}
	}
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("ResourceError should unwrap to ErrResourceUnavailable")
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Device: "csr1", Operation: "PUT running-config", Status: 400, Body: "% Invalid input\n", Err: cause}

	msg := err.Error()
	if !strings.Contains(msg, "HTTP 400") {
		t.Errorf("Error message should contain status: %s", msg)
	}
	if !strings.Contains(msg, "% Invalid input") {
		t.Errorf("Error message should contain body: %s", msg)
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("TransportError should match ErrTransport")
	}
	if !errors.Is(err, cause) {
		t.Errorf("TransportError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("activating: %w", err)
	var te *TransportError
	if !errors.As(wrapped, &te) || te.Status != 400 {
		t.Errorf("errors.As should find the TransportError through wrapping")
	}
}

func TestLifecycleError(t *testing.T) {
	err := &LifecycleError{Driver: "clidriver", State: "CREATED", Operation: "commit"}
	if !errors.Is(err, ErrLifecycle) {
		t.Errorf("LifecycleError should unwrap to ErrLifecycle")
	}
	if !strings.Contains(err.Error(), "commit not allowed in state CREATED") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("activate", "pe1", "session must be open", "")
	if strings.HasSuffix(err.Error(), "()") {
		t.Errorf("Error message should not have empty details: %s", err.Error())
	}
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("PreconditionError should unwrap to ErrPreconditionFailed")
	}
}

func TestValidationBuilder(t *testing.T) {
	v := &ValidationBuilder{}
	if v.Build() != nil {
		t.Error("empty builder should produce nil error")
	}

	v.Add(true, "not added").
		Add(false, "endpoint list is empty").
		AddErrorf("vlan %d out of range", 5000)

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	err := v.Build()
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("ValidationError should unwrap to ErrValidationFailed")
	}
	if strings.Contains(err.Error(), "not added") {
		t.Errorf("satisfied condition should not be reported: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "vlan 5000 out of range") {
		t.Errorf("missing formatted error: %s", err.Error())
	}
}

func TestRollbackError(t *testing.T) {
	cause := NewResourceError("pe2", "mount point", "")

	plain := &RollbackError{Cause: cause}
	if plain.Error() != cause.Error() {
		t.Errorf("RollbackError without rollback failures = %q, want %q", plain.Error(), cause.Error())
	}

	withFailures := &RollbackError{Cause: cause, RollbackErrs: []error{errors.New("pe1 unreachable")}}
	if !strings.Contains(withFailures.Error(), "rollback failed: pe1 unreachable") {
		t.Errorf("unexpected message: %s", withFailures.Error())
	}
	if !errors.Is(withFailures, ErrResourceUnavailable) {
		t.Errorf("RollbackError should unwrap to its cause")
	}
}
