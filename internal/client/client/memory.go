package client

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/id"
	"github.com/dmitrijs2005/fieldline/internal/rpc"
	"github.com/dmitrijs2005/fieldline/internal/validate"
)

// Call is one recorded MemoryClient invocation.
type Call struct {
	Method         string
	IdempotencyKey string
	Report         models.IncidentReport
	ID             string
	// Duplicate is set when a ReportIncident key was already known.
	Duplicate bool
}

// MemoryClient is an in-memory backend. ReportIncident is idempotent by key;
// failures can be injected per method name (rpc.Method* constants).
type MemoryClient struct {
	mu sync.Mutex

	incidents map[string]models.IncidentReport
	order     []string
	byKey     map[string]string

	notifications []models.Notification
	seq           int

	calls    []Call
	failNext map[string][]error
	failAll  map[string]error

	uploadBase string
	now        func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		incidents: make(map[string]models.IncidentReport),
		byKey:     make(map[string]string),
		failNext:  make(map[string][]error),
		failAll:   make(map[string]error),
		now:       time.Now,
	}
}

// FailNext queues errors returned by the next calls to method, in order.
func (m *MemoryClient) FailNext(method string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[method] = append(m.failNext[method], errs...)
}

// FailAlways makes every call to method fail with err; nil clears it.
func (m *MemoryClient) FailAlways(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failAll, method)
		return
	}
	m.failAll[method] = err
}

// SetUploadBase enables presigned uploads: tickets point below base.
func (m *MemoryClient) SetUploadBase(base string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadBase = base
}

// injected must be called with mu held.
func (m *MemoryClient) injected(method string) error {
	if q := m.failNext[method]; len(q) > 0 {
		m.failNext[method] = q[1:]
		return q[0]
	}
	return m.failAll[method]
}

func (m *MemoryClient) record(c Call) {
	m.calls = append(m.calls, c)
}

// Calls returns the recorded calls to method, or every call when method is
// empty.
func (m *MemoryClient) Calls(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, 0, len(m.calls))
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Incidents returns the created incidents in creation order.
func (m *MemoryClient) Incidents() []models.IncidentReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.IncidentReport, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.incidents[id])
	}
	return out
}

// Notify publishes a new unread notification.
func (m *MemoryClient) Notify(t models.AlertType, message, location string) models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	n := models.Notification{
		ID:        "n" + strconv.Itoa(m.seq),
		AlertType: t,
		Message:   message,
		Location:  location,
		CreatedAt: m.now().UTC(),
	}
	m.notifications = append(m.notifications, n)
	return n
}

// Publish is Notify for a prepared notification; the id and timestamp are
// assigned here. It lets MemoryClient back the development server.
func (m *MemoryClient) Publish(_ context.Context, n models.Notification) (models.Notification, error) {
	out := m.Notify(n.AlertType, n.Message, n.Location)
	return out, nil
}

// AddNotification stores n as given, replacing any notification with the
// same id.
func (m *MemoryClient) AddNotification(n models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == n.ID {
			m.notifications[i] = n
			return
		}
	}
	m.notifications = append(m.notifications, n)
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: rpc.MethodPing})
	return m.injected(rpc.MethodPing)
}

func (m *MemoryClient) ReportIncident(_ context.Context, report models.IncidentReport, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := Call{Method: rpc.MethodReportIncident, IdempotencyKey: idempotencyKey, Report: report}
	if err := m.injected(rpc.MethodReportIncident); err != nil {
		m.record(call)
		return "", err
	}
	if idempotencyKey != "" {
		if existing, ok := m.byKey[idempotencyKey]; ok {
			call.ID, call.Duplicate = existing, true
			m.record(call)
			return existing, nil
		}
	}
	if err := validate.Struct(report); err != nil {
		m.record(call)
		return "", fmt.Errorf("%w: %w", common.ErrPermanentRejection, err)
	}

	incidentID := "inc-" + id.New()
	m.incidents[incidentID] = report
	m.order = append(m.order, incidentID)
	if idempotencyKey != "" {
		m.byKey[idempotencyKey] = incidentID
	}

	call.ID = incidentID
	m.record(call)
	return incidentID, nil
}

func (m *MemoryClient) list(method string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: method})
	if err := m.injected(method); err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryClient) GetUnreadNotifications(context.Context) ([]models.Notification, error) {
	return m.list(rpc.MethodGetUnreadNotifications, true)
}

func (m *MemoryClient) GetAllNotifications(context.Context) ([]models.Notification, error) {
	return m.list(rpc.MethodGetAllNotifications, false)
}

func (m *MemoryClient) MarkNotificationAsRead(_ context.Context, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: rpc.MethodMarkNotificationAsRead, ID: notificationID})
	if err := m.injected(rpc.MethodMarkNotificationAsRead); err != nil {
		return err
	}
	for i := range m.notifications {
		if m.notifications[i].ID == notificationID {
			m.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification[%s]: %w", notificationID, common.ErrPermanentRejection)
}

func (m *MemoryClient) MarkAllNotificationsAsRead(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: rpc.MethodMarkAllNotificationsAsRead})
	if err := m.injected(rpc.MethodMarkAllNotificationsAsRead); err != nil {
		return err
	}
	for i := range m.notifications {
		m.notifications[i].IsRead = true
	}
	return nil
}

func (m *MemoryClient) PresignAttachmentUpload(_ context.Context, req models.UploadRequest) (models.UploadTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Method: rpc.MethodPresignAttachmentUpload, ID: req.Key})
	if err := m.injected(rpc.MethodPresignAttachmentUpload); err != nil {
		return models.UploadTicket{}, err
	}
	if m.uploadBase == "" {
		return models.UploadTicket{}, fmt.Errorf("no object store configured: %w", common.ErrRemoteUpload)
	}
	u := m.uploadBase + "/" + req.Key
	return models.UploadTicket{UploadURL: u, Locator: u}, nil
}
