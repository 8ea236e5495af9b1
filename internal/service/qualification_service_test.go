package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

func newQualificationHarness(clock func() time.Time) (*memoryStore, QualificationService) {
	store := newMemoryStore()
	svc := NewQualificationService(&memoryIncidentRepo{store: store}, &memoryRuleRepo{store: store}, testLogger()).(*qualificationService)
	svc.now = clock
	return store, svc
}

func TestEvaluateRulesMatchesPointsThresholdWithinWindow(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Raka"})
	store.addRule(models.DetentionRule{
		Name:           "ten points in thirty days",
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})

	// 12 points accumulated over the last 20 days.
	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 5, OccurredAt: clock().AddDate(0, 0, -20)})
	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 7, OccurredAt: clock().AddDate(0, 0, -3)})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "ten points in thirty days", rule.Name)
}

func TestEvaluateRulesIgnoresPointsOutsideWindow(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Sari"})
	store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})

	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 8, OccurredAt: clock().AddDate(0, 0, -45)})
	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 4, OccurredAt: clock().AddDate(0, 0, -2)})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestEvaluateRulesIgnoresResolvedIncidents(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Dewi"})
	store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})

	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 12, OccurredAt: clock().AddDate(0, 0, -5), Resolved: true})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestEvaluateRulesFirstMatchWinsByAscendingMinPoints(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Bima"})
	store.addRule(models.DetentionRule{
		Name:           "severe tier",
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      20,
		TimePeriodDays: 30,
		Active:         true,
	})
	store.addRule(models.DetentionRule{
		Name:           "base tier",
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      10,
		TimePeriodDays: 30,
		Active:         true,
	})

	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 25, OccurredAt: clock().AddDate(0, 0, -1)})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "base tier", rule.Name)
}

func TestEvaluateRuleSetOrdersUnsortedInput(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Dita"})
	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 25, OccurredAt: clock().AddDate(0, 0, -1)})

	// Highest threshold listed first; the lowest matching one must still win.
	unsorted := []models.DetentionRule{
		{
			Name:           "severe tier",
			ActionType:     models.RuleActionPointsThreshold,
			MinPoints:      20,
			TimePeriodDays: 30,
			Active:         true,
		},
		{
			Name:           "base tier",
			ActionType:     models.RuleActionPointsThreshold,
			MinPoints:      10,
			TimePeriodDays: 30,
			Active:         true,
		},
	}

	rule, err := svc.EvaluateRuleSet(context.Background(), student.ID, unsorted)
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "base tier", rule.Name)
}

func TestEvaluateRulesRespectsMaxPointsBound(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Tono"})
	store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      5,
		MaxPoints:      ptrInt(9),
		TimePeriodDays: 30,
		Active:         true,
	})

	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 15, OccurredAt: clock().AddDate(0, 0, -1)})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestEvaluateRulesSeverityMatch(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Lina"})
	store.addRule(models.DetentionRule{
		Name:           "any severe incident",
		ActionType:     models.RuleActionSeverityMatch,
		Severity:       models.IncidentSeveritySevere,
		TimePeriodDays: 30,
		Active:         true,
	})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.Nil(t, rule)

	store.addIncident(models.Incident{StudentID: student.ID, Severity: models.IncidentSeveritySevere, PointDeduction: 1, OccurredAt: clock().AddDate(0, 0, -1)})

	rule, err = svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "any severe incident", rule.Name)
}

func TestEvaluateRulesIncidentCount(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Agus"})
	store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionIncidentCount,
		MinPoints:      3,
		TimePeriodDays: 14,
		Active:         true,
	})

	for i := 0; i < 3; i++ {
		store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 1, OccurredAt: clock().AddDate(0, 0, -i-1)})
	}

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, rule)
}

func TestEvaluateRulesSkipsInactiveRules(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	student := store.addStudent(models.Student{Name: "Rina"})
	store.addRule(models.DetentionRule{
		ActionType:     models.RuleActionPointsThreshold,
		MinPoints:      5,
		TimePeriodDays: 30,
		Active:         false,
	})
	store.addIncident(models.Incident{StudentID: student.ID, PointDeduction: 10, OccurredAt: clock().AddDate(0, 0, -1)})

	rule, err := svc.EvaluateRules(context.Background(), student.ID)
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestQualifyingStudentsUsesGlobalThreshold(t *testing.T) {
	clock := fixedClock("2024-02-20")
	store, svc := newQualificationHarness(clock)

	over := store.addStudent(models.Student{Name: "Over"})
	under := store.addStudent(models.Student{Name: "Under"})
	store.addIncident(models.Incident{StudentID: over.ID, PointDeduction: GlobalQualifyThreshold, OccurredAt: clock()})
	store.addIncident(models.Incident{StudentID: under.ID, PointDeduction: GlobalQualifyThreshold - 1, OccurredAt: clock()})

	aggregates, err := svc.QualifyingStudents(context.Background())
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	require.Equal(t, over.ID, aggregates[0].StudentID)
}
