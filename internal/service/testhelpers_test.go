package service

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memoryStore backs the in-memory repository fakes. Sharing one store lets
// occupancy queries see assignments created through a different repository.
type memoryStore struct {
	students    map[uint]models.Student
	incidents   []*models.Incident
	rules       []*models.DetentionRule
	sessions    []*models.DetentionSession
	assignments []*models.DetentionAssignment
	queue       []*models.DetentionQueueEntry
	nextID      uint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{students: make(map[uint]models.Student)}
}

func (s *memoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addStudent(student models.Student) models.Student {
	if student.ID == 0 {
		student.ID = s.id()
	}
	s.students[student.ID] = student
	return student
}

func (s *memoryStore) addSession(session models.DetentionSession) models.DetentionSession {
	if session.ID == 0 {
		session.ID = s.id()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	copied := session
	s.sessions = append(s.sessions, &copied)
	return copied
}

func (s *memoryStore) addIncident(incident models.Incident) models.Incident {
	if incident.ID == 0 {
		incident.ID = s.id()
	}
	copied := incident
	s.incidents = append(s.incidents, &copied)
	return copied
}

func (s *memoryStore) addRule(rule models.DetentionRule) models.DetentionRule {
	if rule.ID == 0 {
		rule.ID = s.id()
	}
	copied := rule
	s.rules = append(s.rules, &copied)
	return copied
}

func (s *memoryStore) sessionByID(id uint) *models.DetentionSession {
	for _, session := range s.sessions {
		if session.ID == id {
			return session
		}
	}
	return nil
}

func (s *memoryStore) occupancy(sessionID uint) int {
	count := 0
	for _, assignment := range s.assignments {
		if assignment.SessionID == sessionID && assignment.Status.CountsTowardCapacity() {
			count++
		}
	}
	return count
}

type memoryStudentRepo struct{ store *memoryStore }

func (r *memoryStudentRepo) GetByID(_ context.Context, id uint) (models.Student, error) {
	student, ok := r.store.students[id]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return student, nil
}

func (r *memoryStudentRepo) ListByIDs(_ context.Context, ids []uint) ([]models.Student, error) {
	out := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		if student, ok := r.store.students[id]; ok {
			out = append(out, student)
		}
	}
	return out, nil
}

type memoryIncidentRepo struct{ store *memoryStore }

func (r *memoryIncidentRepo) Create(_ context.Context, incident *models.Incident) error {
	incident.ID = r.store.id()
	incident.CreatedAt = time.Now()
	copied := *incident
	r.store.incidents = append(r.store.incidents, &copied)
	return nil
}

func (r *memoryIncidentRepo) GetByID(_ context.Context, id uint) (models.Incident, error) {
	for _, incident := range r.store.incidents {
		if incident.ID == id {
			return *incident, nil
		}
	}
	return models.Incident{}, gorm.ErrRecordNotFound
}

func (r *memoryIncidentRepo) ListByStudent(_ context.Context, studentID uint, limit int) ([]models.Incident, error) {
	var out []models.Incident
	for _, incident := range r.store.incidents {
		if incident.StudentID == studentID {
			out = append(out, *incident)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryIncidentRepo) matches(incident *models.Incident, studentID uint, since *time.Time) bool {
	if incident.StudentID != studentID || incident.Resolved {
		return false
	}
	if since != nil && incident.OccurredAt.Before(*since) {
		return false
	}
	return true
}

func (r *memoryIncidentRepo) SumUnresolvedPoints(_ context.Context, studentID uint, since *time.Time) (int, error) {
	total := 0
	for _, incident := range r.store.incidents {
		if r.matches(incident, studentID, since) {
			total += incident.PointDeduction
		}
	}
	return total, nil
}

func (r *memoryIncidentRepo) CountUnresolved(_ context.Context, studentID uint, since *time.Time) (int64, error) {
	var count int64
	for _, incident := range r.store.incidents {
		if r.matches(incident, studentID, since) {
			count++
		}
	}
	return count, nil
}

func (r *memoryIncidentRepo) CountUnresolvedBySeverity(_ context.Context, studentID uint, severity models.IncidentSeverity, since *time.Time) (int64, error) {
	var count int64
	for _, incident := range r.store.incidents {
		if r.matches(incident, studentID, since) && incident.Severity == severity {
			count++
		}
	}
	return count, nil
}

func (r *memoryIncidentRepo) ResolveAllForStudent(_ context.Context, studentID uint, at time.Time) (int64, error) {
	var resolved int64
	for _, incident := range r.store.incidents {
		if incident.StudentID == studentID && !incident.Resolved && incident.PointDeduction > 0 {
			incident.Resolved = true
			resolvedAt := at
			incident.ResolvedAt = &resolvedAt
			resolved++
		}
	}
	return resolved, nil
}

func (r *memoryIncidentRepo) AggregateUnresolved(_ context.Context, minPoints int) ([]repository.StudentPointsAggregate, error) {
	totals := make(map[uint]*repository.StudentPointsAggregate)
	for _, incident := range r.store.incidents {
		if incident.Resolved {
			continue
		}
		aggregate, ok := totals[incident.StudentID]
		if !ok {
			aggregate = &repository.StudentPointsAggregate{StudentID: incident.StudentID}
			totals[incident.StudentID] = aggregate
		}
		aggregate.TotalPoints += incident.PointDeduction
		aggregate.IncidentCount++
	}

	var out []repository.StudentPointsAggregate
	for _, aggregate := range totals {
		if aggregate.TotalPoints >= minPoints {
			out = append(out, *aggregate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPoints > out[j].TotalPoints })
	return out, nil
}

type memoryRuleRepo struct{ store *memoryStore }

func (r *memoryRuleRepo) Create(_ context.Context, rule *models.DetentionRule) error {
	rule.ID = r.store.id()
	copied := *rule
	r.store.rules = append(r.store.rules, &copied)
	return nil
}

func (r *memoryRuleRepo) List(_ context.Context) ([]models.DetentionRule, error) {
	out := make([]models.DetentionRule, 0, len(r.store.rules))
	for _, rule := range r.store.rules {
		out = append(out, *rule)
	}
	return out, nil
}

func (r *memoryRuleRepo) ListActive(_ context.Context) ([]models.DetentionRule, error) {
	var out []models.DetentionRule
	for _, rule := range r.store.rules {
		if rule.Active {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinPoints < out[j].MinPoints })
	return out, nil
}

func (r *memoryRuleRepo) SetActive(_ context.Context, id uint, active bool) (models.DetentionRule, error) {
	for _, rule := range r.store.rules {
		if rule.ID == id {
			rule.Active = active
			return *rule, nil
		}
	}
	return models.DetentionRule{}, gorm.ErrRecordNotFound
}

type memorySessionRepo struct{ store *memoryStore }

func (r *memorySessionRepo) Create(_ context.Context, session *models.DetentionSession) error {
	session.ID = r.store.id()
	session.CreatedAt = time.Now()
	copied := *session
	r.store.sessions = append(r.store.sessions, &copied)
	return nil
}

func (r *memorySessionRepo) GetByID(_ context.Context, id uint) (models.DetentionSession, error) {
	if session := r.store.sessionByID(id); session != nil {
		return *session, nil
	}
	return models.DetentionSession{}, gorm.ErrRecordNotFound
}

func (r *memorySessionRepo) List(_ context.Context, filter repository.SessionFilter) ([]models.DetentionSession, error) {
	var out []models.DetentionSession
	for _, session := range r.store.sessions {
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		if filter.FromDate != nil && session.Date.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && session.Date.After(*filter.ToDate) {
			continue
		}
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memorySessionRepo) Save(_ context.Context, session *models.DetentionSession) error {
	stored := r.store.sessionByID(session.ID)
	if stored == nil {
		return gorm.ErrRecordNotFound
	}
	*stored = *session
	return nil
}

func (r *memorySessionRepo) Occupancy(_ context.Context, sessionID uint) (int, error) {
	return r.store.occupancy(sessionID), nil
}

func (r *memorySessionRepo) Occupancies(_ context.Context, sessionIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(sessionIDs))
	for _, id := range sessionIDs {
		out[id] = r.store.occupancy(id)
	}
	return out, nil
}

func (r *memorySessionRepo) FirstAvailable(_ context.Context, from time.Time) (models.DetentionSession, error) {
	var candidates []*models.DetentionSession
	for _, session := range r.store.sessions {
		if session.Status != models.SessionStatusScheduled || session.Date.Before(from) {
			continue
		}
		if r.store.occupancy(session.ID) >= session.MaxCapacity {
			continue
		}
		candidates = append(candidates, session)
	}
	if len(candidates) == 0 {
		return models.DetentionSession{}, gorm.ErrRecordNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Date.Equal(candidates[j].Date) {
			return candidates[i].StartTime < candidates[j].StartTime
		}
		return candidates[i].Date.Before(candidates[j].Date)
	})
	return *candidates[0], nil
}

type memoryAssignmentRepo struct{ store *memoryStore }

func (r *memoryAssignmentRepo) Create(_ context.Context, assignment *models.DetentionAssignment) error {
	assignment.ID = r.store.id()
	assignment.CreatedAt = time.Now()
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusAssigned
	}
	copied := *assignment
	r.store.assignments = append(r.store.assignments, &copied)
	return nil
}

func (r *memoryAssignmentRepo) GetByID(_ context.Context, id uint) (models.DetentionAssignment, error) {
	for _, assignment := range r.store.assignments {
		if assignment.ID == id {
			result := *assignment
			if session := r.store.sessionByID(assignment.SessionID); session != nil {
				copied := *session
				result.Session = &copied
			}
			return result, nil
		}
	}
	return models.DetentionAssignment{}, gorm.ErrRecordNotFound
}

func (r *memoryAssignmentRepo) ListBySession(_ context.Context, sessionID uint) ([]models.DetentionAssignment, error) {
	var out []models.DetentionAssignment
	for _, assignment := range r.store.assignments {
		if assignment.SessionID == sessionID {
			out = append(out, *assignment)
		}
	}
	return out, nil
}

func (r *memoryAssignmentRepo) UpdateOutcome(_ context.Context, id uint, status models.AssignmentStatus, notes string) (models.DetentionAssignment, error) {
	for _, assignment := range r.store.assignments {
		if assignment.ID == id {
			assignment.Status = status
			assignment.Notes = notes
			assignment.UpdatedAt = time.Now()
			return *assignment, nil
		}
	}
	return models.DetentionAssignment{}, gorm.ErrRecordNotFound
}

func (r *memoryAssignmentRepo) HasPendingUpcoming(_ context.Context, studentID uint, today time.Time) (bool, error) {
	for _, assignment := range r.store.assignments {
		if assignment.StudentID != studentID || !assignment.Status.Pending() {
			continue
		}
		if session := r.store.sessionByID(assignment.SessionID); session != nil && !session.Date.Before(today) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAssignmentRepo) ExistsForSession(_ context.Context, studentID, sessionID uint) (bool, error) {
	for _, assignment := range r.store.assignments {
		if assignment.StudentID == studentID && assignment.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAssignmentRepo) StudentIDsWithPendingUpcoming(_ context.Context, today time.Time) (map[uint]struct{}, error) {
	out := make(map[uint]struct{})
	for _, assignment := range r.store.assignments {
		if !assignment.Status.Pending() {
			continue
		}
		if session := r.store.sessionByID(assignment.SessionID); session != nil && !session.Date.Before(today) {
			out[assignment.StudentID] = struct{}{}
		}
	}
	return out, nil
}

type memoryQueueRepo struct{ store *memoryStore }

func (r *memoryQueueRepo) InsertPending(_ context.Context, studentID uint, points int, queuedAt time.Time) (models.DetentionQueueEntry, bool, error) {
	for _, entry := range r.store.queue {
		if entry.StudentID == studentID && entry.Status == models.QueueEntryStatusPending {
			return *entry, false, nil
		}
	}

	entry := models.DetentionQueueEntry{
		ID:            r.store.id(),
		StudentID:     studentID,
		PointsAtQueue: points,
		QueuedAt:      queuedAt,
		Status:        models.QueueEntryStatusPending,
	}
	r.store.queue = append(r.store.queue, &entry)
	return entry, true, nil
}

func (r *memoryQueueRepo) ListPending(ctx context.Context, limit int) ([]models.DetentionQueueEntry, error) {
	return r.List(ctx, models.QueueEntryStatusPending, limit)
}

func (r *memoryQueueRepo) List(_ context.Context, status models.QueueEntryStatus, limit int) ([]models.DetentionQueueEntry, error) {
	var out []models.DetentionQueueEntry
	for _, entry := range r.store.queue {
		if entry.Status == status {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryQueueRepo) MarkAssigned(_ context.Context, id uint, sessionID uint) (models.DetentionQueueEntry, error) {
	for _, entry := range r.store.queue {
		if entry.ID == id {
			if entry.Status == models.QueueEntryStatusPending {
				entry.Status = models.QueueEntryStatusAssigned
				entry.AssignedSessionID = &sessionID
			}
			return *entry, nil
		}
	}
	return models.DetentionQueueEntry{}, gorm.ErrRecordNotFound
}

func (r *memoryQueueRepo) CountPending(_ context.Context) (int64, error) {
	var count int64
	for _, entry := range r.store.queue {
		if entry.Status == models.QueueEntryStatusPending {
			count++
		}
	}
	return count, nil
}

type fakeNotifier struct {
	published []dto.NotificationCreateRequest
}

func (n *fakeNotifier) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	n.published = append(n.published, payload)
	return dto.NotificationResponse{UserID: payload.UserID, Category: payload.Category}, nil
}

type fakeLive struct {
	events []dto.LiveEvent
}

func (l *fakeLive) Broadcast(event dto.LiveEvent) {
	l.events = append(l.events, event)
}

func date(value string) time.Time {
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return parsed
}

func fixedClock(value string) func() time.Time {
	at := date(value).Add(8 * time.Hour)
	return func() time.Time { return at }
}

func ptrInt(v int) *int {
	return &v
}
