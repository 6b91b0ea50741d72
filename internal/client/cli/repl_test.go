package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.err
}

func (f *fakeExec) Report(_ context.Context, a []string) error      { return f.record("report", a) }
func (f *fakeExec) Attach(_ context.Context, a []string) error      { return f.record("attach", a) }
func (f *fakeExec) Attachments(_ context.Context, a []string) error { return f.record("attachments", a) }
func (f *fakeExec) Queue(_ context.Context, a []string) error       { return f.record("queue", a) }
func (f *fakeExec) Failed(_ context.Context, a []string) error      { return f.record("failed", a) }
func (f *fakeExec) Retry(_ context.Context, a []string) error       { return f.record("retry", a) }
func (f *fakeExec) Discard(_ context.Context, a []string) error     { return f.record("discard", a) }
func (f *fakeExec) Sync(_ context.Context, a []string) error        { return f.record("sync", a) }
func (f *fakeExec) Alerts(_ context.Context, a []string) error      { return f.record("alerts", a) }
func (f *fakeExec) Ack(_ context.Context, a []string) error         { return f.record("ack", a) }
func (f *fakeExec) AckAll(_ context.Context, a []string) error      { return f.record("ackall", a) }
func (f *fakeExec) History(_ context.Context, a []string) error     { return f.record("history", a) }
func (f *fakeExec) Status(_ context.Context, a []string) error      { return f.record("status", a) }

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprintln(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	out := capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"report Flooded road",
		"",
		"attach inc-1 a.jpg b.mp4",
		"attachments",
		"queue",
		"failed",
		"retry 01J",
		"discard 01K",
		"sync",
		"alerts",
		"ack n1",
		"ackall",
		"history",
		"status",
		"foobar",
		"exit",
		"queue",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(online)" }, rdr(input))

	require.Equal(t, []string{
		"report Flooded road",
		"attach inc-1 a.jpg b.mp4",
		"attachments",
		"queue",
		"failed",
		"retry 01J",
		"discard 01K",
		"sync",
		"alerts",
		"ack n1",
		"ackall",
		"history",
		"status",
	}, exec.calls)

	joined := strings.Join(*out, "")
	require.Contains(t, joined, "fieldline (online)> ")
	require.Contains(t, joined, "Available commands:")
	require.Contains(t, joined, "Unknown command: foobar")
	require.Contains(t, joined, "Bye!")
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	out := capturePrintln(t)

	exec := &fakeExec{err: errors.New("queue unavailable")}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("queue\nstatus"))

	require.Equal(t, []string{"queue", "status"}, exec.calls)
	require.Contains(t, strings.Join(*out, ""), "Error: queue unavailable")
}
