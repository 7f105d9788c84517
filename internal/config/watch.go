package config

import (
	"context"
	"os"
	"time"
)

// WatchRooms loads the catalog at path, hands it to onUpdate and then polls the
// file, calling onUpdate again whenever it changes and still validates. Invalid
// edits are passed to onError and the previous catalog stays in effect.
func WatchRooms(ctx context.Context, path string, interval time.Duration, onUpdate func(*Catalog), onError func(error)) error {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(catalog)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				catalog, err := LoadCatalog(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onUpdate != nil {
					onUpdate(catalog)
				}
			}
		}
	}()

	return nil
}
