package injector

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestBypassCoreTrustArgs(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{}
	inj, err := New(bundle, Config{TeamID: "ABCDE12345"}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.bypassCoreTrust("/path/to/Foo"); err != nil {
		t.Fatalf("bypassCoreTrust() error = %v", err)
	}
	want := []string{CTBypassHelper, "-i", "/path/to/Foo", "-r", "-t", "ABCDE12345"}
	if !reflect.DeepEqual(run.calls[0], want) {
		t.Errorf("helper invocation = %v, want %v", run.calls[0], want)
	}
}

func TestBypassCoreTrustFailure(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{fail: map[string]error{CTBypassHelper: fmt.Errorf("boom")}}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	err = inj.bypassCoreTrust("/path/to/Foo")
	if !errors.Is(err, ErrSignatureBypass) {
		t.Errorf("bypassCoreTrust() error = %v, want ErrSignatureBypass", err)
	}
}

func TestTransferOwnershipArgs(t *testing.T) {
	bundle := newTestBundle(t, "Foo", "com.example.foo")
	run := &recordingRunner{}
	inj, err := New(bundle, Config{}, WithCommandRunner(run))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.transferOwnership("/path/to/Foo", false); err != nil {
		t.Fatalf("transferOwnership() error = %v", err)
	}
	want := []string{ChownHelper, "33:33", "/path/to/Foo"}
	if !reflect.DeepEqual(run.calls[0], want) {
		t.Errorf("helper invocation = %v, want %v", run.calls[0], want)
	}

	if err := inj.transferOwnership("/path/to/Dir", true); err != nil {
		t.Fatalf("recursive transferOwnership() error = %v", err)
	}
	want = []string{ChownHelper, "-R", "33:33", "/path/to/Dir"}
	if !reflect.DeepEqual(run.calls[1], want) {
		t.Errorf("recursive helper invocation = %v, want %v", run.calls[1], want)
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	var run execRunner

	if err := run.Run("/bin/sh", "-c", "true"); err != nil {
		t.Fatalf("Run(true) error = %v", err)
	}

	err := run.Run("/bin/sh", "-c", "exit 3")
	if err == nil {
		t.Fatal("Run(exit 3) should fail")
	}
	if !strings.Contains(err.Error(), "exit code 3") {
		t.Errorf("Run(exit 3) error = %v, want exit code in message", err)
	}

	if err := run.Run("/nonexistent/helper"); err == nil {
		t.Error("Run() of a missing helper should fail")
	}
}
