package tracking

import (
	"context"
	"time"

	"kestrel/internal/database"
	"kestrel/internal/domain"
	"kestrel/internal/geo"

	"github.com/charmbracelet/log"
)

const defaultStoreTimeout = 5 * time.Second

// Ingestor records inbound requests, annotated with their resolved location.
// Ingestion never fails from the caller's perspective: a failed geolocation
// leaves the location fields empty, a failed store is logged and dropped.
type Ingestor struct {
	resolver     *geo.Resolver
	storeTimeout time.Duration
}

func NewIngestor(resolver *geo.Resolver) *Ingestor {
	return &Ingestor{
		resolver:     resolver,
		storeTimeout: defaultStoreTimeout,
	}
}

// Ingest stores one request record. status is 0 when the surrounding handler
// did not report one.
func (i *Ingestor) Ingest(ctx context.Context, ip, path string, status int) *domain.RequestLog {
	record := &domain.RequestLog{
		IP:     ip,
		Path:   path,
		Status: status,
	}

	if i.resolver != nil {
		location := i.resolver.Resolve(ctx, ip)
		record.Country = location.Country
		record.City = location.City
	}

	storeCtx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()

	if err := database.InsertRequestLog(storeCtx, record); err != nil {
		log.Warn("Request log write failed", "ip", ip, "path", path, "error", err)
	}

	return record
}
