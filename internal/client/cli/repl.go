package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. Session
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	Report(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Attachments(ctx context.Context, args []string) error
	Queue(ctx context.Context, args []string) error
	Failed(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Discard(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Alerts(ctx context.Context, args []string) error
	Ack(ctx context.Context, args []string) error
	AckAll(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  report [title]              capture an incident (prompts when no title is given)
  attach <incident> <file>... replace the evidence stored for an incident
  attachments [incident]      list stored evidence
  queue                       list reports waiting to be sent
  failed                      list reports the backend rejected
  retry <action>              move a rejected report back to the queue
  discard <action>            drop a queued or rejected report
  sync                        send queued reports now
  alerts                      show alerts on screen
  ack <id> | ackall           acknowledge alerts
  history                     list all notifications
  status                      connectivity, queue and alert summary
  exit | quit`

// runREPL reads commands line by line and dispatches them to a until EOF,
// "exit" or "quit". Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("fieldline %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "report":
			cmdErr = a.Report(ctx, args)
		case "attach":
			cmdErr = a.Attach(ctx, args)
		case "attachments":
			cmdErr = a.Attachments(ctx, args)
		case "queue":
			cmdErr = a.Queue(ctx, args)
		case "failed":
			cmdErr = a.Failed(ctx, args)
		case "retry":
			cmdErr = a.Retry(ctx, args)
		case "discard":
			cmdErr = a.Discard(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx, args)
		case "alerts":
			cmdErr = a.Alerts(ctx, args)
		case "ack":
			cmdErr = a.Ack(ctx, args)
		case "ackall":
			cmdErr = a.AckAll(ctx, args)
		case "history":
			cmdErr = a.History(ctx, args)
		case "status":
			cmdErr = a.Status(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
