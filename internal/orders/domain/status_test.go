package domain

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"complete", StatusComplete},
		{"Completed", StatusComplete},
		{"COMPLETE", StatusComplete},
		{"  Done ", StatusComplete},
		{"In Progress", StatusInProgress},
		{"in_review", StatusInReview},
		{"Under_Review", StatusInReview},
		{"ready to send", StatusReadyToSend},
		{"canceled", StatusCancelled},
		{"cancelled", StatusCancelled},
		{"on hold", StatusOnHold},
		// Unknown values pass through lowercased and trimmed.
		{" Mystery_State ", Status("mystery_state")},
		{"", Status("")},
	}

	for _, tc := range tests {
		got := Normalize(tc.raw)
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Completed", "in progress", "READY TO SEND", "mystery_state",
		"revisions", "waiting_on_client", "  paused  ",
	}
	for _, raw := range inputs {
		once := Normalize(raw)
		twice := Normalize(string(once))
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", raw, once, twice)
		}
	}
}

func TestGroupTotality(t *testing.T) {
	all := []Status{
		StatusNew, StatusInProgress, StatusInReview, StatusRevisions,
		StatusReadyToSend, StatusComplete, StatusOnHold, StatusHoldClient,
		StatusWaitingOnClient, StatusPaused, StatusCancelled,
	}
	valid := map[StatusGroup]struct{}{
		GroupProgress: {}, GroupReview: {}, GroupReady: {}, GroupHold: {}, GroupComplete: {},
	}

	for _, s := range all {
		group := Group(s)
		if _, ok := valid[group]; !ok {
			t.Errorf("Group(%q) = %q, not a known group", s, group)
		}
		if Group(s) != group {
			t.Errorf("Group(%q) not stable across calls", s)
		}
	}

	// Drifted statuses still classify.
	if Group(Status("mystery_state")) != GroupProgress {
		t.Errorf("unknown status should classify as progress")
	}
}

func TestIsActive(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNew, true},
		{StatusInProgress, true},
		{StatusInReview, true},
		{StatusRevisions, true},
		{StatusReadyToSend, true},
		{StatusOnHold, true},
		{StatusPaused, true},
		{StatusComplete, false},
		{StatusCancelled, false},
	}

	for _, tc := range tests {
		if got := IsActive(tc.status); got != tc.want {
			t.Errorf("IsActive(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestPrimaryRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  Role
		ok    bool
	}{
		{"admin wins", []string{"reviewer", "admin"}, RoleAdmin, true},
		{"reviewer over appraiser", []string{"appraiser", "reviewer"}, RoleReviewer, true},
		{"single", []string{"appraiser"}, RoleAppraiser, true},
		{"unknown ignored", []string{"superuser", "client"}, RoleClient, true},
		{"none", []string{"superuser"}, "", false},
		{"empty", nil, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PrimaryRole(tc.roles)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("PrimaryRole(%v) = (%q, %v), want (%q, %v)", tc.roles, got, ok, tc.want, tc.ok)
			}
		})
	}
}
