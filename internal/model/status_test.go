package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusPending},
		{StatusPending, StatusFetching},
		{StatusFetching, StatusFetching},
		{StatusFetching, StatusAssessing},
		{StatusFetching, StatusFailed},
		{StatusAssessing, StatusPromoting},
		{StatusAssessing, StatusRejected},
		{StatusPromoting, StatusClean},
		{StatusPromoting, StatusFailed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusPending, StatusClean},
		{StatusPending, StatusAssessing},
		{StatusClean, StatusFetching},
		{StatusRejected, StatusPromoting},
		{StatusFailed, StatusPending},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionWorkItem_BlocksIllegalTransition(t *testing.T) {
	item := WorkItem{
		Candidate: Candidate{Accession: "SRR0000001"},
		Status:    StatusPending,
	}

	if err := TransitionWorkItem(&item, StatusClean, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if item.Status != StatusPending {
		t.Fatalf("status must not change on rejected transition, got %s", item.Status)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusClean, StatusRejected, StatusFailed} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []string{StatusPending, StatusFetching, StatusAssessing, StatusPromoting} {
		if IsTerminal(s) {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}
