package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/models"
)

// Publisher wraps the go-shared events publisher for import-run events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new import events publisher
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		// Default to GKE internal NATS service URL
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "catalog-import-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	// Ensure the products stream exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, events.StreamProducts, []string{"product.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure products stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "import-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishImportCompleted publishes a single product.bulk_imported event
// for a run that created at least one product. Downstream consumers treat
// it as one catalog-changed signal per run, not one per row.
func (p *Publisher) PublishImportCompleted(ctx context.Context, run *models.ImportRun, summary importer.Summary) {
	event := events.NewProductEvent("product.bulk_imported", run.TenantID)
	event.SourceID = uuid.New().String()
	event.ChangeType = "bulk_imported"
	event.NewValue = map[string]interface{}{
		"runId":        run.ID.String(),
		"totalRows":    run.TotalRows,
		"successCount": summary.SuccessCount,
		"errorCount":   len(summary.Errors),
		"cancelled":    summary.Cancelled,
	}

	// Publish asynchronously to not block the main flow
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.PublishProduct(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"runId":     run.ID,
				"tenantID":  run.TenantID,
			}).WithError(err).Error("Failed to publish import event")
		} else {
			p.logger.WithFields(logrus.Fields{
				"eventType":    event.EventType,
				"runId":        run.ID,
				"successCount": summary.SuccessCount,
				"tenantID":     run.TenantID,
			}).Info("Import event published successfully")
		}
	}()
}
