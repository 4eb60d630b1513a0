package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/internal/influx"
	gormstorage "github.com/OCAP2/tickbridge/internal/storage/gorm"
	"github.com/OCAP2/tickbridge/internal/storage/memory"
	"github.com/OCAP2/tickbridge/internal/storage/websocket"
)

// Backend type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeInflux    = "influx"
	TypeWebSocket = "websocket"
)

// Loggers carries the loggers handed to backends. Database backends log
// through zerolog, the rest through slog.
type Loggers struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg config.StorageConfig, logs Loggers) (Backend, error) {
	switch cfg.Type {
	case TypeMemory:
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		return gormstorage.NewSQLite(cfg.SQLite, logs.DBLogger), nil
	case TypePostgres:
		return gormstorage.NewPostgres(cfg.DB, logs.DBLogger), nil
	case TypeInflux:
		return influx.New(cfg.Influx, cfg.Influx.BackupPath, logs.DBLogger), nil
	case TypeWebSocket:
		return websocket.New(cfg.WebSocket, logs.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
