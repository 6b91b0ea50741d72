package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/robfig/cron/v3"
)

type demoAlert struct {
	message  string
	location string
}

var demoAlerts = map[models.AlertType]demoAlert{
	models.AlertHighRiskZone:   {"Entering a high-risk zone, proceed with caution", "Sector 4"},
	models.AlertWeatherWarning: {"Severe thunderstorm expected within the hour", "North ridge"},
	models.AlertUnusualEvent:   {"Unusual activity reported nearby", "Riverside depot"},
	models.AlertRegionalTrend:  {"Incident reports in your region are rising", "District 2"},
	models.AlertSystem:         {"Coordination service maintenance tonight at 23:00", ""},
}

// AlertGenerator publishes a rotating set of sample alerts so clients have
// something to show during development.
type AlertGenerator struct {
	pub      Publisher
	interval time.Duration
	logger   logging.Logger

	mu   sync.Mutex
	next int
}

func NewAlertGenerator(p Publisher, interval time.Duration, l logging.Logger) *AlertGenerator {
	return &AlertGenerator{pub: p, interval: interval, logger: l.With("module", "alerts")}
}

// Emit publishes the next alert in rotation.
func (g *AlertGenerator) Emit(ctx context.Context) (models.Notification, error) {
	g.mu.Lock()
	t := models.AlertTypes[g.next%len(models.AlertTypes)]
	g.next++
	g.mu.Unlock()

	a := demoAlerts[t]
	n, err := g.pub.Publish(ctx, models.Notification{AlertType: t, Message: a.message, Location: a.location})
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to publish %s alert: %w", t, err)
	}
	g.logger.Info(ctx, "Published alert", "id", n.ID, "type", string(t))
	return n, nil
}

// Run emits an alert every interval until ctx is done.
func (g *AlertGenerator) Run(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(g.interval), cron.FuncJob(func() {
		if _, err := g.Emit(ctx); err != nil {
			g.logger.Warn(ctx, "demo alert failed", "error", err)
		}
	}))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
