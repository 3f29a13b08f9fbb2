package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tendant/odm-dispatcher/internal/process"
)

type fakeRunner struct {
	stdout string
	stderr string
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.stderr, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSpec() JobSpec {
	return JobSpec{
		Name:        "odm-job-photo-jpg",
		Image:       "opendronemap/odm",
		CPU:         4,
		MemoryGB:    8,
		CommandLine: "odm --project-path /datasets",
		Registry:    RegistryAuth{Username: "user", Password: "hunter2"},
		Volume: FileVolume{
			AccountName: "acct",
			AccountKey:  "s3cret",
			ShareName:   "odm",
			MountPath:   "/datasets/code",
		},
	}
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestCreateArgs(t *testing.T) {
	a := NewAzureCLI("rg-odm", &fakeRunner{}, testLogger())
	args := a.CreateArgs(testSpec())

	if args[0] != "container" || args[1] != "create" {
		t.Fatalf("unexpected subcommand: %v", args[:2])
	}
	want := map[string]string{
		"--resource-group":                 "rg-odm",
		"--name":                           "odm-job-photo-jpg",
		"--image":                          "opendronemap/odm",
		"--restart-policy":                 "Never",
		"--cpu":                            "4",
		"--memory":                         "8",
		"--registry-username":              "user",
		"--registry-password":              "hunter2",
		"--azure-file-volume-account-name": "acct",
		"--azure-file-volume-account-key":  "s3cret",
		"--azure-file-volume-share-name":   "odm",
		"--azure-file-volume-mount-path":   "/datasets/code",
		"--command-line":                   "odm --project-path /datasets",
	}
	for flag, v := range want {
		if got := flagValue(args, flag); got != v {
			t.Fatalf("%s = %q, want %q", flag, got, v)
		}
	}
}

func TestRedactMasksSecrets(t *testing.T) {
	a := NewAzureCLI("rg", &fakeRunner{}, testLogger())
	args := a.CreateArgs(testSpec())
	masked := strings.Join(Redact(args), " ")

	if strings.Contains(masked, "hunter2") || strings.Contains(masked, "s3cret") {
		t.Fatalf("secrets leaked: %s", masked)
	}
	if flagValue(args, "--registry-password") != "hunter2" {
		t.Fatal("Redact modified the original slice")
	}
}

func TestLaunchPropagatesCommandError(t *testing.T) {
	runner := &fakeRunner{err: &CommandError{Command: "az", ExitCode: 1, Stderr: "quota exceeded"}}
	a := NewAzureCLI("rg", runner, testLogger())

	err := a.Launch(context.Background(), testSpec())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one launch call, got %d", len(runner.calls))
	}
}

func TestStatusTrimsOutput(t *testing.T) {
	runner := &fakeRunner{stdout: "Terminated\n"}
	a := NewAzureCLI("rg", runner, testLogger())

	status, err := a.Status(context.Background(), "odm-job-x")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status != process.StatusTerminated {
		t.Fatalf("unexpected status %q", status)
	}
	call := runner.calls[0]
	if flagValue(call, "--query") != "instanceView.state" || flagValue(call, "--output") != "tsv" {
		t.Fatalf("unexpected show args: %v", call)
	}
}

func TestTerminateDeletesContainer(t *testing.T) {
	runner := &fakeRunner{}
	a := NewAzureCLI("rg", runner, testLogger())

	if err := a.Terminate(context.Background(), "odm-job-x"); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	call := strings.Join(runner.calls[0], " ")
	if !strings.HasPrefix(call, "az container delete") || !strings.HasSuffix(call, "--yes") {
		t.Fatalf("unexpected delete call: %s", call)
	}
}
