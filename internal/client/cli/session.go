package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/app"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/notifications"
	"github.com/dmitrijs2005/fieldline/internal/client/syncer"
	"github.com/dmitrijs2005/fieldline/internal/id"
)

// readFile is a test seam for loading attachments from disk.
var readFile = os.ReadFile

// Backend is what the session drives. *app.App implements it.
type Backend interface {
	ReportIncident(ctx context.Context, report models.IncidentReport, files []models.RawFile) (models.PendingAction, []models.StoredAttachment, error)
	Attach(ctx context.Context, incidentID string, files []models.RawFile) ([]models.StoredAttachment, error)
	Evidence(ctx context.Context) (map[string][]models.StoredAttachment, error)
	Pending(ctx context.Context) ([]models.PendingAction, error)
	Failed(ctx context.Context) ([]models.FailedAction, error)
	Retry(ctx context.Context, actionID string) (models.PendingAction, error)
	Discard(ctx context.Context, actionID string) error
	SyncNow(ctx context.Context) (syncer.Result, error)
	Alerts() []notifications.Item
	Acknowledge(ctx context.Context, notificationID string) error
	AcknowledgeAll(ctx context.Context) error
	History(ctx context.Context) ([]models.Notification, error)
	Status(ctx context.Context) (app.Status, error)
	OnAlert(fn func(notifications.Change)) (unsubscribe func())
	OnRejected(fn func(syncer.Failure)) (unsubscribe func())
}

var errUsage = errors.New("usage")

// Session is one interactive operator session over a Backend.
type Session struct {
	backend Backend
	reader  *bufio.Reader
	out     io.Writer

	// unsaved holds attachments of reports that could not be stored,
	// keyed by the report's local id, until attach succeeds for it.
	unsaved map[string][]models.StoredAttachment
}

func NewSession(b Backend, in io.Reader, out io.Writer) *Session {
	return &Session{
		backend: b,
		reader:  bufio.NewReader(in),
		out:     &lockedWriter{w: out},
		unsaved: make(map[string][]models.StoredAttachment),
	}
}

// Run prints alerts as they arrive and serves commands until the input
// ends or the user exits.
func (s *Session) Run(ctx context.Context) {
	unsubAlerts := s.backend.OnAlert(s.printAlert)
	defer unsubAlerts()
	unsubRejected := s.backend.OnRejected(func(f syncer.Failure) {
		fmt.Fprintf(s.out, "\n[REJECTED] action %s (%s): %v\n", f.Action.ID, f.Action.Kind, f.Err)
	})
	defer unsubRejected()

	fmt.Fprintln(s.out, "Fieldline reporter (type 'help' for commands)")
	runREPL(ctx, s, func() string { return s.statusLine(ctx) }, s.reader)
}

func (s *Session) printAlert(c notifications.Change) {
	if c.Kind != notifications.Shown {
		return
	}
	n := c.Notification
	where := ""
	if n.Location != "" {
		where = " @ " + n.Location
	}
	fmt.Fprintf(s.out, "\n[ALERT %s] %s%s (ack %s)\n", n.AlertType, n.Message, where, n.ID)
}

func (s *Session) statusLine(ctx context.Context) string {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return "(status unavailable)"
	}
	mode := "offline"
	if st.Online {
		mode = "online"
	}
	parts := []string{mode}
	if st.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", st.Pending))
	}
	if st.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", st.Failed))
	}
	if st.OnScreen > 0 {
		parts = append(parts, fmt.Sprintf("%d alerts", st.OnScreen))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (s *Session) Report(ctx context.Context, args []string) error {
	report := models.IncidentReport{}
	var paths []string

	if len(args) > 0 {
		report.Title = strings.Join(args, " ")
	} else {
		var err error
		if report.Title, err = GetSimpleText(s.reader, "Title", s.out); err != nil {
			return err
		}
		if report.Description, err = GetMultiline(s.reader, "Description", s.out); err != nil {
			return err
		}
		if report.Category, err = GetSimpleText(s.reader, "Category (optional)", s.out); err != nil {
			return err
		}
		if report.Severity, err = GetSimpleText(s.reader, "Severity: low, medium, high or critical (optional)", s.out); err != nil {
			return err
		}
		if report.Location, err = GetSimpleText(s.reader, "Location (optional)", s.out); err != nil {
			return err
		}
		if paths, err = GetList(s.reader, "Attachment files", s.out); err != nil {
			return err
		}
	}

	files, err := loadFiles(paths)
	if err != nil {
		return err
	}

	report.LocalID = id.NewKey()
	action, atts, err := s.backend.ReportIncident(ctx, report, files)
	if err != nil {
		if len(atts) > 0 {
			s.unsaved[report.LocalID] = atts
			fmt.Fprintf(s.out, "Report %s was not queued, %d attachment(s) kept in memory:\n", report.LocalID, len(atts))
			for _, a := range atts {
				s.printAttachment(a)
			}
			fmt.Fprintf(s.out, "Retry with: attach %s %s\n", report.LocalID, strings.Join(paths, " "))
		}
		return err
	}
	fmt.Fprintf(s.out, "Report queued as %s with %d attachment(s)\n", action.ID, len(atts))
	return nil
}

func (s *Session) Attach(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: attach <incident> <file>...", errUsage)
	}
	files, err := loadFiles(args[1:])
	if err != nil {
		return err
	}
	atts, err := s.backend.Attach(ctx, args[0], files)
	if err != nil {
		return err
	}
	delete(s.unsaved, args[0])
	for _, a := range atts {
		s.printAttachment(a)
	}
	return nil
}

func (s *Session) Attachments(ctx context.Context, args []string) error {
	all, err := s.backend.Evidence(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(all))
	for key := range all {
		if len(args) == 0 || key == args[0] {
			ids = append(ids, key)
		}
	}
	var held []string
	for key := range s.unsaved {
		if len(args) == 0 || key == args[0] {
			held = append(held, key)
		}
	}
	if len(ids) == 0 && len(held) == 0 {
		fmt.Fprintln(s.out, "No attachments")
		return nil
	}
	sort.Strings(ids)
	for _, key := range ids {
		fmt.Fprintf(s.out, "%s (%d)\n", key, len(all[key]))
		for _, a := range all[key] {
			s.printAttachment(a)
		}
	}
	sort.Strings(held)
	for _, key := range held {
		fmt.Fprintf(s.out, "%s (%d, not saved)\n", key, len(s.unsaved[key]))
		for _, a := range s.unsaved[key] {
			s.printAttachment(a)
		}
	}
	return nil
}

func (s *Session) printAttachment(a models.StoredAttachment) {
	where := a.Locator
	if a.IsEmbedded() {
		where = "embedded"
	}
	fmt.Fprintf(s.out, "  %s  %s  %d B  %s\n", a.Name, a.MimeType, a.SizeBytes, where)
}

func (s *Session) Queue(ctx context.Context, _ []string) error {
	list, err := s.backend.Pending(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(s.out, "Queue is empty")
		return nil
	}
	for _, a := range list {
		fmt.Fprintf(s.out, "%s  %s  queued %s  attempts %d", a.ID, a.Kind, a.EnqueuedAt.Local().Format(time.DateTime), a.Attempts)
		if a.LastError != "" {
			fmt.Fprintf(s.out, "  last error: %s", a.LastError)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *Session) Failed(ctx context.Context, _ []string) error {
	list, err := s.backend.Failed(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(s.out, "No rejected reports")
		return nil
	}
	for _, f := range list {
		fmt.Fprintf(s.out, "%s  %s  %s  %s\n", f.Action.ID, f.Action.Kind, f.FailedAt.Local().Format(time.DateTime), f.Reason)
	}
	return nil
}

func (s *Session) Retry(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: retry <action>", errUsage)
	}
	a, err := s.backend.Retry(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Requeued %s\n", a.ID)
	return nil
}

func (s *Session) Discard(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: discard <action>", errUsage)
	}
	if err := s.backend.Discard(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Discarded %s\n", args[0])
	return nil
}

func (s *Session) Sync(ctx context.Context, _ []string) error {
	res, err := s.backend.SyncNow(ctx)
	fmt.Fprintf(s.out, "Sent %d, rejected %d, deferred %d\n", res.Submitted, res.Failed, res.Deferred)
	return err
}

func (s *Session) Alerts(context.Context, []string) error {
	items := s.backend.Alerts()
	if len(items) == 0 {
		fmt.Fprintln(s.out, "No alerts on screen")
		return nil
	}
	for _, it := range items {
		n := it.Notification
		fmt.Fprintf(s.out, "%s  [%s] %s  %s\n", n.ID, n.AlertType, n.Message, n.Location)
	}
	return nil
}

func (s *Session) Ack(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: ack <id>...", errUsage)
	}
	for _, id := range args {
		if err := s.backend.Acknowledge(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) AckAll(ctx context.Context, _ []string) error {
	return s.backend.AcknowledgeAll(ctx)
}

func (s *Session) History(ctx context.Context, _ []string) error {
	list, err := s.backend.History(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(s.out, "No notifications")
		return nil
	}
	for _, n := range list {
		mark := "*"
		if n.IsRead {
			mark = " "
		}
		fmt.Fprintf(s.out, "%s %s  %s  [%s] %s\n", mark, n.ID, n.CreatedAt.Local().Format(time.DateTime), n.AlertType, n.Message)
	}
	return nil
}

func (s *Session) Status(ctx context.Context, _ []string) error {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return err
	}
	conn := "offline"
	if st.Online {
		conn = "online"
	}
	fmt.Fprintf(s.out, "Connectivity:   %s\n", conn)
	fmt.Fprintf(s.out, "Queued:         %d\n", st.Pending)
	fmt.Fprintf(s.out, "Rejected:       %d\n", st.Failed)
	fmt.Fprintf(s.out, "Alerts shown:   %d\n", st.OnScreen)
	fmt.Fprintf(s.out, "Unread:         %d\n", st.Unread)
	if st.ConsecutiveFailures > 0 {
		fmt.Fprintf(s.out, "Sync failures:  %d in a row\n", st.ConsecutiveFailures)
	}
	if !st.LastPoll.IsZero() {
		fmt.Fprintf(s.out, "Last poll:      %s\n", st.LastPoll.Local().Format(time.DateTime))
	}
	return nil
}

func loadFiles(paths []string) ([]models.RawFile, error) {
	files := make([]models.RawFile, 0, len(paths))
	for _, p := range paths {
		data, err := readFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment[%s]: %w", p, err)
		}
		files = append(files, models.RawFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// lockedWriter serializes alert output with command output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
