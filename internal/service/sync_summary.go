package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"syncpanel/internal/models"
)

const (
	MessageSyncCompleted = "Sync completed successfully"
	MessageSyncFailed    = "Sync failed"
	MessageStartFailed   = "Failed to start sync"
)

// SummarizeResult turns a completed job's result payload into the success
// message shown to the user. Missing or non-numeric counts read as 0.
func SummarizeResult(syncType models.SyncType, result json.RawMessage) string {
	payload := decodeResult(result)
	switch syncType {
	case models.SyncTypeAll:
		summary, _ := payload["summary"].(map[string]any)
		return fmt.Sprintf("Sync completed: Brands: %d, Prompts: %d, Responses: %d",
			countField(summary, "brands"),
			countField(summary, "total_prompts"),
			countField(summary, "total_responses"),
		)
	case models.SyncTypeGA4:
		return fmt.Sprintf("GA4 sync completed: Clients synced: %d", countField(payload, "clients_synced"))
	case models.SyncTypeAgencyAnalytics:
		return fmt.Sprintf("Agency Analytics sync completed: Campaigns synced: %d", countField(payload, "campaigns_synced"))
	default:
		return MessageSyncCompleted
	}
}

// FailureMessage is the error text for a failed job.
func FailureMessage(errorMessage *string) string {
	if errorMessage == nil {
		return MessageSyncFailed
	}
	msg := strings.TrimSpace(*errorMessage)
	if msg == "" {
		return MessageSyncFailed
	}
	return msg
}

func decodeResult(raw json.RawMessage) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

func countField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil && !math.IsNaN(f) {
			return int(f)
		}
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return 0
}
