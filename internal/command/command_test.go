package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func testFacts() Facts {
	return Facts{
		Binaries: map[string]string{
			"initdb":     "/opt/pg/bin/initdb",
			"postgres":   "/opt/pg/bin/postgres",
			"pg_ctl":     "/opt/pg/bin/pg_ctl",
			"pg_isready": "/opt/pg/bin/pg_isready",
		},
		DataDir:      "/var/lib/pg/data",
		Host:         "127.0.0.1",
		Port:         5433,
		Superuser:    "postgres",
		PasswordFile: "/var/lib/pg/.pgpass",
	}
}

func TestDefaultPlannerPlans(t *testing.T) {
	t.Parallel()

	p := NewDefaultPlanner()

	tests := map[string]struct {
		op         Op
		facts      func() Facts
		wantBinary string
		wantArgs   []string
	}{
		"init storage": {
			op:         OpInitStorage,
			facts:      testFacts,
			wantBinary: "/opt/pg/bin/initdb",
			wantArgs: []string{
				"--pgdata", "/var/lib/pg/data",
				"--username", "postgres",
				"--auth", "password",
				"--pwfile", "/var/lib/pg/.pgpass",
				"--encoding", "UTF8",
			},
		},
		"init storage with locale": {
			op: OpInitStorage,
			facts: func() Facts {
				f := testFacts()
				f.Locale = "C"
				return f
			},
			wantBinary: "/opt/pg/bin/initdb",
			wantArgs: []string{
				"--pgdata", "/var/lib/pg/data",
				"--username", "postgres",
				"--auth", "password",
				"--pwfile", "/var/lib/pg/.pgpass",
				"--encoding", "UTF8",
				"--locale", "C",
			},
		},
		"check ready": {
			op:         OpCheckReady,
			facts:      testFacts,
			wantBinary: "/opt/pg/bin/pg_isready",
			wantArgs:   []string{"--host", "127.0.0.1", "--port", "5433", "--timeout", "1"},
		},
		"stop server": {
			op:         OpStopServer,
			facts:      testFacts,
			wantBinary: "/opt/pg/bin/pg_ctl",
			wantArgs:   []string{"stop", "--pgdata", "/var/lib/pg/data", "--mode", "fast", "--wait"},
		},
		"server args": {
			op:         OpServerArgs,
			facts:      testFacts,
			wantBinary: "/opt/pg/bin/postgres",
			wantArgs: []string{
				"-D", "/var/lib/pg/data",
				"-p", "5433",
				"-h", "127.0.0.1",
				"-k", "/var/lib/pg/data",
			},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			inv, err := p.Plan(tc.op, tc.facts())
			if err != nil {
				t.Fatalf("Plan(%s): %v", tc.op, err)
			}
			if inv.Binary != tc.wantBinary {
				t.Errorf("binary = %q, want %q", inv.Binary, tc.wantBinary)
			}
			if got, want := strings.Join(inv.Args, " "), strings.Join(tc.wantArgs, " "); got != want {
				t.Errorf("args = %q, want %q", got, want)
			}
		})
	}
}

func TestDefaultPlannerErrors(t *testing.T) {
	t.Parallel()

	p := NewDefaultPlanner()

	tests := map[string]struct {
		op      Op
		mutate  func(*Facts)
		wantErr error
	}{
		"unknown op": {
			op:      Op("drop-database"),
			mutate:  func(*Facts) {},
			wantErr: ErrUnknownOp,
		},
		"missing binary": {
			op:      OpInitStorage,
			mutate:  func(f *Facts) { delete(f.Binaries, "initdb") },
			wantErr: ErrMissingFact,
		},
		"missing data dir": {
			op:      OpServerArgs,
			mutate:  func(f *Facts) { f.DataDir = "" },
			wantErr: ErrMissingFact,
		},
		"missing port": {
			op:      OpCheckReady,
			mutate:  func(f *Facts) { f.Port = 0 },
			wantErr: ErrMissingFact,
		},
		"missing password file": {
			op:      OpInitStorage,
			mutate:  func(f *Facts) { f.PasswordFile = "" },
			wantErr: ErrMissingFact,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			facts := testFacts()
			tc.mutate(&facts)
			if _, err := p.Plan(tc.op, facts); !errors.Is(err, tc.wantErr) {
				t.Errorf("Plan error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	r := NewExecRunner(nil)
	result, err := r.Run(context.Background(), Invocation{
		Binary: sh,
		Args:   []string{"-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "out")
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "err")
	}
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	t.Parallel()

	r := NewExecRunner(nil)
	if _, err := r.Run(context.Background(), Invocation{Binary: "/nonexistent/binary"}); err == nil {
		t.Error("Run should fail when the binary does not exist")
	}
}
