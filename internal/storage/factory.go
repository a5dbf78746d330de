package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/storage/badger"
	"github.com/ternarybob/sessionbroker/internal/storage/file"
)

// NewSessionStorage creates the session store selected by config
func NewSessionStorage(logger arbor.ILogger, config *common.Config) (interfaces.SessionStorage, error) {
	switch config.Storage.Type {
	case "badger", "":
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, err
		}
		return badger.NewSessionStorage(db, config.Identity.Email, logger), nil
	case "file":
		return file.NewSessionStorage(config.Storage.File.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected 'badger' or 'file')", config.Storage.Type)
	}
}
