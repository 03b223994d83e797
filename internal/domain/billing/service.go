package billing

import (
	"github.com/rs/zerolog"

	"github.com/ehr/inpatient/internal/platform/db"
	"github.com/ehr/inpatient/internal/platform/metrics"
)

// DefaultNumberPrefix precedes the zero-padded invoice counter.
const DefaultNumberPrefix = "INV-"

// Service hosts the invoice engine (invoice.go) and the payment ledger
// (ledger.go). Both mutate an invoice only while holding its row lock.
type Service struct {
	repo    Repository
	tx      db.Transactor
	logger  zerolog.Logger
	metrics *metrics.Metrics
	prefix  string
}

func NewService(repo Repository, tx db.Transactor, logger zerolog.Logger, m *metrics.Metrics, numberPrefix string) *Service {
	if numberPrefix == "" {
		numberPrefix = DefaultNumberPrefix
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		logger:  logger.With().Str("component", "billing").Logger(),
		metrics: m,
		prefix:  numberPrefix,
	}
}
