package protocol

import (
	"context"

	"github.com/dukex/triggers-frontend/pkg/models"
)

// StatusReporter receives lifecycle transitions from triggers.
// A trigger reports Ready at most once and exactly one terminal status.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update models.StatusUpdate)
}
