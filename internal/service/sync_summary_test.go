package service

import (
	"encoding/json"
	"testing"

	"syncpanel/internal/models"
)

func TestSummarizeResult(t *testing.T) {
	cases := []struct {
		name     string
		syncType models.SyncType
		result   string
		want     string
	}{
		{
			name:     "full sync",
			syncType: models.SyncTypeAll,
			result:   `{"summary":{"brands":5,"total_prompts":120,"total_responses":900}}`,
			want:     "Sync completed: Brands: 5, Prompts: 120, Responses: 900",
		},
		{
			name:     "full sync missing fields",
			syncType: models.SyncTypeAll,
			result:   `{"summary":{"brands":2}}`,
			want:     "Sync completed: Brands: 2, Prompts: 0, Responses: 0",
		},
		{
			name:     "full sync no result",
			syncType: models.SyncTypeAll,
			result:   ``,
			want:     "Sync completed: Brands: 0, Prompts: 0, Responses: 0",
		},
		{
			name:     "ga4",
			syncType: models.SyncTypeGA4,
			result:   `{"clients_synced":7}`,
			want:     "GA4 sync completed: Clients synced: 7",
		},
		{
			name:     "ga4 string count",
			syncType: models.SyncTypeGA4,
			result:   `{"clients_synced":"3"}`,
			want:     "GA4 sync completed: Clients synced: 3",
		},
		{
			name:     "agency analytics",
			syncType: models.SyncTypeAgencyAnalytics,
			result:   `{"campaigns_synced":12}`,
			want:     "Agency Analytics sync completed: Campaigns synced: 12",
		},
		{
			name:     "agency analytics malformed",
			syncType: models.SyncTypeAgencyAnalytics,
			result:   `[1,2]`,
			want:     "Agency Analytics sync completed: Campaigns synced: 0",
		},
		{
			name:     "unknown type",
			syncType: models.SyncType("other"),
			result:   `{}`,
			want:     MessageSyncCompleted,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := SummarizeResult(tc.syncType, json.RawMessage(tc.result))
			if got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestFailureMessage(t *testing.T) {
	msg := "quota exceeded"
	blank := "   "
	if got := FailureMessage(&msg); got != msg {
		t.Fatalf("got=%q want=%q", got, msg)
	}
	if got := FailureMessage(&blank); got != MessageSyncFailed {
		t.Fatalf("got=%q want fallback", got)
	}
	if got := FailureMessage(nil); got != MessageSyncFailed {
		t.Fatalf("got=%q want fallback", got)
	}
}

func TestParseSyncKind(t *testing.T) {
	cases := map[string]models.SyncType{
		"full":             models.SyncTypeAll,
		" GA4 ":            models.SyncTypeGA4,
		"agency-analytics": models.SyncTypeAgencyAnalytics,
		"agency_analytics": models.SyncTypeAgencyAnalytics,
	}
	for in, want := range cases {
		kind, err := ParseSyncKind(in)
		if err != nil {
			t.Fatalf("%q: err=%v", in, err)
		}
		if kind.SyncType() != want {
			t.Fatalf("%q: type=%s want %s", in, kind.SyncType(), want)
		}
	}
	if _, err := ParseSyncKind("scrunch"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
