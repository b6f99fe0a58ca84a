package contract

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator() func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("id-%d", next), nil
	}
}

func testContract(t *testing.T, status Status) Contract {
	t.Helper()

	now := fixedClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	start := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	c, err := CreateContract(CreateContractInput{
		OwnerUserID:     "user-1",
		EncounterType:   "date",
		Parties:         []string{"@me", "@alice"},
		Acts:            map[string]flow.ActChoice{"kissing": flow.ActYes},
		StartTime:       &start,
		DurationMinutes: 120,
		Method:          flow.MethodSignature,
		Summary:         "date; with @me, @alice",
	}, now, sequentialIDGenerator())
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	c.Status = status
	return c
}

func TestCreateContract(t *testing.T) {
	t.Parallel()

	now := fixedClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	c, err := CreateContract(CreateContractInput{
		OwnerUserID:   "  user-1  ",
		EncounterType: " Date ",
		Parties:       []string{"@me"},
	}, now, sequentialIDGenerator())
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	if c.ID != "id-1" {
		t.Fatalf("ID = %q, want id-1", c.ID)
	}
	if c.OwnerUserID != "user-1" || c.EncounterType != "date" {
		t.Fatalf("normalization failed: %q %q", c.OwnerUserID, c.EncounterType)
	}
	if c.Status != StatusDraft {
		t.Fatalf("Status = %q, want %q", c.Status, StatusDraft)
	}
	if !c.CreatedAt.Equal(now()) || !c.UpdatedAt.Equal(now()) {
		t.Fatalf("timestamps = %v/%v, want %v", c.CreatedAt, c.UpdatedAt, now())
	}
}

func TestCreateContractValidation(t *testing.T) {
	t.Parallel()

	if _, err := CreateContract(CreateContractInput{EncounterType: "date"}, nil, nil); !errors.Is(err, ErrEmptyOwnerID) {
		t.Fatalf("error = %v, want %v", err, ErrEmptyOwnerID)
	}
	if _, err := CreateContract(CreateContractInput{OwnerUserID: "user-1"}, nil, nil); !errors.Is(err, ErrEmptyEncounterType) {
		t.Fatalf("error = %v, want %v", err, ErrEmptyEncounterType)
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusDraft, StatusPendingApproval, true},
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusPaused, false},
		{StatusPendingApproval, StatusActive, true},
		{StatusPendingApproval, StatusDraft, true},
		{StatusPendingApproval, StatusCompleted, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusDraft, false},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, true},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusDraft, false},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", test.from, test.to), func(t *testing.T) {
			t.Parallel()

			if got := IsStatusTransitionAllowed(test.from, test.to); got != test.allowed {
				t.Fatalf("IsStatusTransitionAllowed(%s, %s) = %v, want %v", test.from, test.to, got, test.allowed)
			}
		})
	}
}

func TestTransitionStatusRejectsInvalid(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusCompleted)
	_, err := TransitionStatus(c, StatusActive, nil)
	if apperrors.CodeOf(err) != apperrors.CodeContractInvalidStatusTransition {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeContractInvalidStatusTransition)
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	now := fixedClock(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC))

	for _, status := range []Status{StatusActive, StatusPaused} {
		c := testContract(t, status)
		revoked, err := Revoke(c, "user-2", now)
		if err != nil {
			t.Fatalf("Revoke from %s: %v", status, err)
		}
		if revoked.Status != StatusCompleted {
			t.Fatalf("Status = %q, want %q", revoked.Status, StatusCompleted)
		}
		if revoked.RevokedBy != "user-2" || revoked.RevokedAt == nil {
			t.Fatalf("revocation record = %q/%v", revoked.RevokedBy, revoked.RevokedAt)
		}
	}
}

func TestRevokeRejectsOtherStatuses(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusDraft, StatusPendingApproval, StatusCompleted} {
		c := testContract(t, status)
		_, err := Revoke(c, "user-2", nil)
		if apperrors.CodeOf(err) != apperrors.CodeContractStatusDisallowsOp {
			t.Fatalf("Revoke from %s code = %v, want %v", status, apperrors.CodeOf(err), apperrors.CodeContractStatusDisallowsOp)
		}
	}
}

func TestApplyActChanges(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusActive)
	updated, err := ApplyActChanges(c, []string{"holding-hands"}, []string{"kissing"}, nil)
	if err != nil {
		t.Fatalf("ApplyActChanges: %v", err)
	}
	if updated.Acts["holding-hands"] != flow.ActYes {
		t.Fatalf("added act = %q, want %q", updated.Acts["holding-hands"], flow.ActYes)
	}
	if _, ok := updated.Acts["kissing"]; ok {
		t.Fatal("removed act survived")
	}
	// The original is untouched.
	if _, ok := c.Acts["kissing"]; !ok {
		t.Fatal("ApplyActChanges mutated its input")
	}
}

func TestApplyActChangesRequiresActive(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusDraft)
	_, err := ApplyActChanges(c, []string{"x"}, nil, nil)
	if apperrors.CodeOf(err) != apperrors.CodeContractStatusDisallowsOp {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeContractStatusDisallowsOp)
	}
}

func TestApplyEndTime(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusActive)
	newEnd := c.StartTime.Add(3 * time.Hour)
	updated, err := ApplyEndTime(c, newEnd, nil)
	if err != nil {
		t.Fatalf("ApplyEndTime: %v", err)
	}
	if updated.DurationMinutes != 180 {
		t.Fatalf("DurationMinutes = %d, want 180", updated.DurationMinutes)
	}
	if !updated.EndTime().Equal(newEnd) {
		t.Fatalf("EndTime() = %v, want %v", updated.EndTime(), newEnd)
	}
}

func TestApplyEndTimeBeforeStart(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusActive)
	_, err := ApplyEndTime(c, c.StartTime.Add(-time.Hour), nil)
	if apperrors.CodeOf(err) != apperrors.CodeAmendmentMalformedChanges {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeAmendmentMalformedChanges)
	}
}

func TestMarkCollaborative(t *testing.T) {
	t.Parallel()

	c := testContract(t, StatusDraft)
	shared, err := MarkCollaborative(c, nil)
	if err != nil {
		t.Fatalf("MarkCollaborative: %v", err)
	}
	if !shared.IsCollaborative {
		t.Fatal("IsCollaborative = false, want true")
	}

	completed := testContract(t, StatusCompleted)
	if _, err := MarkCollaborative(completed, nil); apperrors.CodeOf(err) != apperrors.CodeContractStatusDisallowsOp {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeContractStatusDisallowsOp)
	}
}
