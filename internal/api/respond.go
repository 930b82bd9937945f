package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// Notifier delivers realtime notifications to connected dashboards
type Notifier interface {
	Notify(n types.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(types.Notification) {}

// StorageRecorder receives persistence observations
type StorageRecorder interface {
	RecordRowsPersisted(n int)
	RecordStorageError(operation string)
}

type nopStorageRecorder struct{}

func (nopStorageRecorder) RecordRowsPersisted(int)   {}
func (nopStorageRecorder) RecordStorageError(string) {}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storageStatus maps a store error to a response status
func storageStatus(err error) int {
	if errors.Is(err, storage.ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
