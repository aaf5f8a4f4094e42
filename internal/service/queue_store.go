package service

import (
	"fmt"

	"langclash/internal/database"
	"langclash/internal/delivery"
	"langclash/internal/repository"
)

// NewQueueStore picks the durable store behind the telemetry queue.
// backend is one of sql, file or memory; db is only used for sql.
func NewQueueStore(backend, name, file string, db database.DBTX) (delivery.Store, error) {
	switch backend {
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("queue backend sql needs a database")
		}
		return repository.NewStoreRepository(db, name), nil
	case "file":
		return delivery.NewFileStore(file), nil
	case "memory":
		return delivery.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", backend)
	}
}
