package port

import (
	"context"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
)

// TelemetrySource opens authenticated sessions against the monitoring API.
type TelemetrySource interface {
	Login(ctx context.Context) (TelemetrySession, error)
}

// TelemetrySession is one authenticated session. It is owned by a single
// caller and reused across cycles until it fails.
type TelemetrySession interface {
	FetchTelemetry(ctx context.Context, plantIndex uint) (*domain.RawTelemetry, error)
	Close(ctx context.Context) error
}

type PowerBalanceReconciler interface {
	Reconcile(raw domain.RawTelemetry, at time.Time) domain.PowerBalance
}
