package geoquest

import (
	"fmt"

	"github.com/minus-twelve/geoquest/storage"
	"github.com/minus-twelve/geoquest/types"
)

func CreateStore(cfg types.StoreConfig) (Store, error) {
	switch cfg.StoreType {
	case "", "memory":
		return storage.NewMemoryStore(cfg.Memory.MaxSessions), nil
	case "redis":
		store, err := storage.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid store type %q", cfg.StoreType)
	}
}
