package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
)

type incidentHarness struct {
	store     *memoryStore
	incidents *incidentService
}

func newIncidentHarness(clock func() time.Time) incidentHarness {
	store := newMemoryStore()

	qualification := NewQualificationService(&memoryIncidentRepo{store: store}, &memoryRuleRepo{store: store}, testLogger()).(*qualificationService)
	qualification.now = clock

	engine := NewDetentionEngine(
		&memorySessionRepo{store: store},
		&memoryAssignmentRepo{store: store},
		&memoryStudentRepo{store: store},
		&memoryQueueRepo{store: store},
		qualification,
		&fakeNotifier{},
		&fakeLive{},
		testLogger(),
	).(*detentionEngine)
	engine.now = clock

	incidents := NewIncidentService(
		&memoryIncidentRepo{store: store},
		&memoryStudentRepo{store: store},
		qualification,
		engine,
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	).(*incidentService)
	incidents.now = clock

	return incidentHarness{store: store, incidents: incidents}
}

func TestRecordIncidentWithoutRuleMatch(t *testing.T) {
	h := newIncidentHarness(fixedClock("2024-03-01"))
	student := h.store.addStudent(models.Student{Name: "Raka"})

	result, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "minor",
		PointDeduction: 2,
		Description:    "late to class",
	}, "teacher-7")
	require.NoError(t, err)
	require.Equal(t, student.ID, result.Incident.StudentID)
	require.Equal(t, 2, result.Incident.PointDeduction)
	require.Nil(t, result.MatchedRule)
	require.Nil(t, result.Placement)
}

func TestRecordIncidentTriggersPlacement(t *testing.T) {
	clock := fixedClock("2024-03-01")
	h := newIncidentHarness(clock)

	student := h.store.addStudent(models.Student{Name: "Sari"})
	h.store.addRule(models.DetentionRule{
		Name:           "ten point rule",
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})
	session := h.store.addSession(models.DetentionSession{Date: date("2024-03-04"), StartTime: "15:00", MaxCapacity: 5})

	h.store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 7, OccurredAt: clock().AddDate(0, 0, -5)})

	result, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "moderate",
		PointDeduction: 5,
		Description:    "disrupting class repeatedly",
	}, "teacher-7")
	require.NoError(t, err)
	require.NotNil(t, result.MatchedRule)
	require.Equal(t, "ten point rule", result.MatchedRule.Name)
	require.NotNil(t, result.Placement)
	require.Equal(t, session.ID, result.Placement.SessionID)
	require.Equal(t, "ten point rule", result.Placement.Reason)
}

func TestRecordIncidentQueuesWhenNoCapacity(t *testing.T) {
	clock := fixedClock("2024-03-01")
	h := newIncidentHarness(clock)

	student := h.store.addStudent(models.Student{Name: "Tono"})
	h.store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})

	result, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "major",
		PointDeduction: 12,
		Description:    "fighting in the corridor",
	}, "teacher-3")
	require.NoError(t, err)
	require.NotNil(t, result.MatchedRule)
	require.Nil(t, result.Placement)
	require.NotNil(t, result.Queued)
}

func TestRecordIncidentUnknownStudent(t *testing.T) {
	h := newIncidentHarness(fixedClock("2024-03-01"))

	_, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      42,
		Severity:       "minor",
		PointDeduction: 1,
		Description:    "whatever happened",
	}, "teacher-1")
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestRecordIncidentValidation(t *testing.T) {
	h := newIncidentHarness(fixedClock("2024-03-01"))

	_, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:   1,
		Severity:    "catastrophic",
		Description: "bad",
	}, "teacher-1")
	require.Error(t, err)
}

func TestRecordIncidentSanitizesDescription(t *testing.T) {
	h := newIncidentHarness(fixedClock("2024-03-01"))
	student := h.store.addStudent(models.Student{Name: "Lina"})

	result, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "minor",
		PointDeduction: 1,
		Description:    "<b>shoving</b> in the hallway",
	}, "teacher-2")
	require.NoError(t, err)
	require.Equal(t, "shoving in the hallway", result.Incident.Description)
}

func TestRecordIncidentParsesOccurredAt(t *testing.T) {
	h := newIncidentHarness(fixedClock("2024-03-01"))
	student := h.store.addStudent(models.Student{Name: "Agus"})

	result, err := h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "minor",
		PointDeduction: 1,
		Description:    "skipping assembly",
		OccurredAt:     "2024-02-28T09:30:00Z",
	}, "teacher-2")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC), result.Incident.OccurredAt)

	_, err = h.incidents.Record(context.Background(), dto.IncidentCreateRequest{
		StudentID:      student.ID,
		Severity:       "minor",
		PointDeduction: 1,
		Description:    "skipping assembly",
		OccurredAt:     "yesterday",
	}, "teacher-2")
	require.Error(t, err)
}
