// Package security tracks per-IP request volume, escalates abusive
// addresses to the blacklist and keeps the device sessions seen on
// authenticated requests.
package security

import (
	"context"
	"time"

	"github.com/futureofwork/core/internal/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlacklistReason is recorded on entries created by the escalation sweep.
const BlacklistReason = "Too many requests in short time"

type Options struct {
	SuspiciousWindow   time.Duration
	SuspiciousRequests int64
	BlacklistWindow    time.Duration
	BlacklistRequests  int64
	ActivityRetention  time.Duration
	Now                func() time.Time
	// Alerter, when set, hears about every address the sweep blacklists.
	Alerter Alerter
}

// Alerter is satisfied by *bark.Service.
type Alerter interface {
	Blacklisted(ctx context.Context, ip string)
}

func (o *Options) withDefaults() {
	if o.SuspiciousWindow <= 0 {
		o.SuspiciousWindow = 2 * time.Minute
	}
	if o.SuspiciousRequests <= 0 {
		o.SuspiciousRequests = 75
	}
	if o.BlacklistWindow <= 0 {
		o.BlacklistWindow = 3 * time.Minute
	}
	if o.BlacklistRequests <= 0 {
		o.BlacklistRequests = 100
	}
	if o.ActivityRetention <= 0 {
		o.ActivityRetention = 30 * 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	opts    Options
}

// NewService builds the service. m may be nil.
func NewService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics, opts Options) *Service {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log.Named("SecurityService"), metrics: m, opts: opts}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }
