package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/observability"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

const subscriberBuffer = 16

// NotificationService persists guardian/admin notifications and streams them
// to connected SSE subscribers. When Redis or NATS is configured, published
// notifications also fan out to the other API nodes.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

// fanoutEnvelope is the cross-node wire format. Origin lets a node drop its
// own messages when they come back around.
type fanoutEnvelope struct {
	Origin  string                   `json:"origin"`
	Payload dto.NotificationResponse `json:"payload"`
	At      time.Time                `json:"at"`
}

// subscriberHub is the in-process fanout: per-user channel sets behind one
// lock. Slow subscribers are skipped rather than blocked on.
type subscriberHub struct {
	mu     sync.RWMutex
	byUser map[string]map[chan dto.NotificationResponse]struct{}
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{byUser: make(map[string]map[chan dto.NotificationResponse]struct{})}
}

func (h *subscriberHub) add(userID string, ch chan dto.NotificationResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byUser[userID]
	if set == nil {
		set = make(map[chan dto.NotificationResponse]struct{})
		h.byUser[userID] = set
	}
	set[ch] = struct{}{}
}

func (h *subscriberHub) remove(userID string, ch chan dto.NotificationResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[userID]
	if !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.byUser, userID)
	}
}

func (h *subscriberHub) fanout(notification dto.NotificationResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.byUser[notification.UserID] {
		select {
		case ch <- notification:
		default:
		}
	}
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	hub          *subscriberHub
	logger       zerolog.Logger
	tracer       trace.Tracer
	origin       string
}

// NewNotificationService constructs a notification service. channelBase is
// the colon-delimited prefix shared by all pub/sub channels of this app;
// nil redis/nats clients disable the corresponding fanout leg.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	svc := &notificationService{
		repo:      repo,
		redis:     redisClient,
		nats:      natsConn,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		hub:       newSubscriberHub(),
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/sma-discipline-api/internal/service/notification"),
		origin:    uuid.NewString(),
	}
	if channelBase != "" {
		svc.redisChannel = channelBase + ":notifications"
		svc.natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}
	return svc
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.category", payload.Category),
	))
	defer span.End()

	record := models.Notification{
		UserID:   payload.UserID,
		Category: payload.Category,
		Title:    strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Message:  message,
		Metadata: payload.Metadata,
	}
	if err := s.repo.Create(spanCtx, &record); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(record)
	s.hub.fanout(response)
	if err := s.relay(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Str("category", response.Category).Msg("cross-node notification relay failed")
	}
	observability.NotificationsPublishedTotal().WithLabelValues(response.Category).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, subscriberBuffer)
	s.hub.add(userID, ch)
	observability.SSEClientsActive().Inc()

	return ch, func() {
		s.hub.remove(userID, ch)
		observability.SSEClientsActive().Dec()
	}
}

// relay pushes the notification to the configured brokers so sibling nodes
// can deliver it to subscribers connected to them.
func (s *notificationService) relay(ctx context.Context, notification dto.NotificationResponse) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	raw, err := json.Marshal(fanoutEnvelope{Origin: s.origin, Payload: notification, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, raw).Err(); err != nil {
			return err
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("notification redis subscription closed")
			}
			return
		}
		s.deliverRemote([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "sma-discipline-notifications", func(msg *nats.Msg) {
		s.deliverRemote(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("nats notification subscription failed")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("nats notification drain failed")
		}
	}()
}

func (s *notificationService) deliverRemote(raw []byte) {
	var envelope fanoutEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed notification envelope")
		return
	}
	if envelope.Origin == s.origin {
		return
	}

	notification := envelope.Payload
	if notification.Category == "" {
		notification.Category = "generic"
	}
	observability.NotificationsPublishedTotal().WithLabelValues(notification.Category).Inc()
	s.hub.fanout(notification)
}
