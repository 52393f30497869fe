package storage

import (
	"testing"
	"time"
)

func TestBuildCallbackPath(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	path, err := BuildCallbackPath(CallbackPathParams{
		ReceivedAt: time.Date(2025, 3, 2, 1, 0, 0, 0, ist),
		Reason:     "Rejected",
		ID:         "01J0000000000000000000000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "payment-callbacks/2025/03/01/rejected/01J0000000000000000000000.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildCallbackPathRejectsInvalidSegment(t *testing.T) {
	now := time.Now()
	cases := []CallbackPathParams{
		{ReceivedAt: now, Reason: "../bad", ID: "x"},
		{ReceivedAt: now, Reason: "unmatched", ID: "a/b"},
		{ReceivedAt: now, Reason: "", ID: "x"},
		{Reason: "rejected", ID: "x"},
	}
	for _, params := range cases {
		if _, err := BuildCallbackPath(params); err == nil {
			t.Fatalf("expected error for %+v", params)
		}
	}
}
