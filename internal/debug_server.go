package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is one badger key rendered for the debug inspector.
type InspectRow struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	Timestamp string `json:"timestamp"`
	EntityID  string `json:"entity_id"`
	Size      int    `json:"size"`
}

type StatsProvider func() map[string]any

// StartDebugServer exposes /stats and /inspect on a side port. It is only
// started when a debug port is configured; nothing here is part of the
// serving surface.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, stats StatsProvider) {
	mux := http.NewServeMux()

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]any{}
		if stats != nil {
			payload = stats()
		}
		_ = json.NewEncoder(w).Encode(payload)
	})

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		var rows []InspectRow
		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					rows = append(rows, mapRow(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"prefix": prefix, "items": rows})
	})

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		log.Info("Debug server listening", "address", addr)
		_ = http.ListenAndServe(addr, mux)
	}()
}

// mapRow decodes the "{namespace}:{scope}:{timestamp}:{id}" key layout used
// by the message log; anything else falls back to the raw key.
func mapRow(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Namespace: "default",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Size:      len(val),
	}
	parts := strings.Split(key, ":")
	if len(parts) >= 4 {
		row.Namespace = parts[0]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("15:04:05")
		}
		row.EntityID = parts[3]
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	}
	return row
}
