package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
)

type engineHarness struct {
	store    *memoryStore
	engine   *detentionEngine
	notifier *fakeNotifier
	live     *fakeLive
}

func newEngineHarness(clock func() time.Time) engineHarness {
	store := newMemoryStore()
	notifier := &fakeNotifier{}
	live := &fakeLive{}

	qualification := NewQualificationService(&memoryIncidentRepo{store: store}, &memoryRuleRepo{store: store}, testLogger()).(*qualificationService)
	qualification.now = clock

	engine := NewDetentionEngine(
		&memorySessionRepo{store: store},
		&memoryAssignmentRepo{store: store},
		&memoryStudentRepo{store: store},
		&memoryQueueRepo{store: store},
		qualification,
		notifier,
		live,
		testLogger(),
	).(*detentionEngine)
	engine.now = clock

	return engineHarness{store: store, engine: engine, notifier: notifier, live: live}
}

func TestAssignPlacesStudentIntoRequestedSession(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Raka", GuardianUserID: "guardian-1"})
	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 2})

	placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &session.ID, Reason: "late thrice"})
	require.NoError(t, err)
	require.NotNil(t, placement.Assignment)
	require.Equal(t, session.ID, placement.Assignment.SessionID)
	require.Equal(t, string(models.AssignmentStatusAssigned), placement.Assignment.Status)
	require.False(t, placement.Duplicate)

	require.Len(t, h.notifier.published, 1)
	require.Equal(t, "guardian-1", h.notifier.published[0].UserID)
	require.Equal(t, models.NotificationCategoryDetentionAssigned, h.notifier.published[0].Category)
	require.Len(t, h.live.events, 1)
}

func TestAssignCapacityOverflowGoesToQueue(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 2})

	first := h.store.addStudent(models.Student{Name: "First"})
	second := h.store.addStudent(models.Student{Name: "Second"})
	third := h.store.addStudent(models.Student{Name: "Third"})

	for _, student := range []models.Student{first, second} {
		placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &session.ID})
		require.NoError(t, err)
		require.NotNil(t, placement.Assignment)
	}

	placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: third.ID, SessionID: &session.ID})
	require.NoError(t, err)
	require.Nil(t, placement.Assignment)
	require.NotNil(t, placement.QueueEntry)
	require.True(t, placement.QueueCreated)
	require.Equal(t, third.ID, placement.QueueEntry.StudentID)

	require.Equal(t, 2, h.store.occupancy(session.ID))
}

func TestAssignDuplicatePendingIsAbsorbed(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Raka"})
	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 5})

	placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &session.ID})
	require.NoError(t, err)
	require.NotNil(t, placement.Assignment)

	repeat, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &session.ID})
	require.NoError(t, err)
	require.True(t, repeat.Duplicate)
	require.Nil(t, repeat.Assignment)
	require.Equal(t, 1, h.store.occupancy(session.ID))
}

func TestAssignWithoutSessionPicksEarliestAvailable(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Sari"})
	h.store.addSession(models.DetentionSession{Date: date("2024-03-11"), StartTime: "15:00", MaxCapacity: 5})
	earlier := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 5})

	placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID})
	require.NoError(t, err)
	require.NotNil(t, placement.Assignment)
	require.Equal(t, earlier.ID, placement.Assignment.SessionID)
}

func TestAssignUnknownStudent(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	_, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: 99})
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestAssignRejectsPastOrNonScheduledSession(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-10"))

	student := h.store.addStudent(models.Student{Name: "Bima"})
	past := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 5})
	cancelled := h.store.addSession(models.DetentionSession{Date: date("2024-03-18"), StartTime: "15:00", MaxCapacity: 5, Status: models.SessionStatusCancelled})

	_, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &past.ID})
	require.ErrorIs(t, err, ErrSessionUnavailable)

	_, err = h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID, SessionID: &cancelled.ID})
	require.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestReassignAfterIsStrictlyForward(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Tono"})
	// A free slot still exists on the missed date itself; it must be skipped.
	h.store.addSession(models.DetentionSession{Date: date("2024-03-01"), StartTime: "15:00", MaxCapacity: 5})
	next := h.store.addSession(models.DetentionSession{Date: date("2024-03-08"), StartTime: "15:00", MaxCapacity: 5})

	placement, err := h.engine.ReassignAfter(context.Background(), student.ID, date("2024-03-01"), "missed detention on 2024-03-01")
	require.NoError(t, err)
	require.NotNil(t, placement.Assignment)
	require.Equal(t, next.ID, placement.Assignment.SessionID)
	require.True(t, placement.Assignment.Reassigned)
}

func TestReassignAfterQueuesWhenNothingForward(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Dewi"})
	h.store.addSession(models.DetentionSession{Date: date("2024-03-01"), StartTime: "15:00", MaxCapacity: 5})

	placement, err := h.engine.ReassignAfter(context.Background(), student.ID, date("2024-03-01"), "missed")
	require.NoError(t, err)
	require.Nil(t, placement.Assignment)
	require.NotNil(t, placement.QueueEntry)
	require.True(t, placement.QueueCreated)
}

func TestAutoAssignBatchFillsSlotsAndQueuesOverflow(t *testing.T) {
	clock := fixedClock("2024-03-01")
	h := newEngineHarness(clock)

	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 2})

	// Three qualifying students, descending debt.
	for i, name := range []string{"A", "B", "C"} {
		student := h.store.addStudent(models.Student{Name: name})
		h.store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 20 - i, OccurredAt: clock().AddDate(0, 0, -1)})
	}

	result, err := h.engine.AutoAssignBatch(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.Qualifying)
	require.Equal(t, 2, result.Assigned)
	require.Equal(t, 1, result.Queued)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 2, h.store.occupancy(session.ID))
}

func TestAutoAssignBatchSkipsStudentsWithPendingDetention(t *testing.T) {
	clock := fixedClock("2024-03-01")
	h := newEngineHarness(clock)

	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 5})
	other := h.store.addSession(models.DetentionSession{Date: date("2024-03-11"), StartTime: "15:00", MaxCapacity: 5})

	blocked := h.store.addStudent(models.Student{Name: "Blocked"})
	h.store.addIncident(models.Incident{StudentID: blocked.ID, PointDeduction: 15, OccurredAt: clock().AddDate(0, 0, -1)})

	placement, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: blocked.ID, SessionID: &other.ID})
	require.NoError(t, err)
	require.NotNil(t, placement.Assignment)

	result, err := h.engine.AutoAssignBatch(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Qualifying)
	require.Equal(t, 0, result.Assigned)
	require.Equal(t, 1, result.Skipped)
}

func TestAutoAssignBatchUnknownSession(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	_, err := h.engine.AutoAssignBatch(context.Background(), 42)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEnqueueOverflowIsIdempotentPerStudent(t *testing.T) {
	h := newEngineHarness(fixedClock("2024-03-01"))

	student := h.store.addStudent(models.Student{Name: "Lina", GuardianUserID: "guardian-9"})

	first, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID})
	require.NoError(t, err)
	require.True(t, first.QueueCreated)

	second, err := h.engine.Assign(context.Background(), dto.AssignRequest{StudentID: student.ID})
	require.NoError(t, err)
	require.False(t, second.QueueCreated)
	require.Equal(t, first.QueueEntry.ID, second.QueueEntry.ID)

	count, err := (&memoryQueueRepo{store: h.store}).CountPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Only the first enqueue notifies the guardian.
	require.Len(t, h.notifier.published, 1)
	require.Equal(t, models.NotificationCategoryDetentionQueued, h.notifier.published[0].Category)
}
