package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/observability"
)

const liveBufferSize = 32

// LiveService fans session/assignment change events out to websocket
// observers such as the staff dashboard. Delivery is best-effort: slow
// consumers drop events rather than blocking the core.
type LiveService interface {
	LiveBroadcaster
	Subscribe() (<-chan dto.LiveEvent, func())
	Start(ctx context.Context)
}

type liveEventEnvelope struct {
	Source string        `json:"source"`
	Event  dto.LiveEvent `json:"event"`
}

type liveService struct {
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu          sync.RWMutex
	subscribers map[chan dto.LiveEvent]struct{}
}

// NewLiveService constructs the live event hub.
func NewLiveService(natsConn *nats.Conn, channelBase string, logger zerolog.Logger) LiveService {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".live"
	}

	return &liveService{
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "live_service").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[chan dto.LiveEvent]struct{}),
	}
}

func (s *liveService) Start(ctx context.Context) {
	if s.nats == nil || s.natsSubject == "" {
		return
	}

	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		var envelope liveEventEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			s.logger.Warn().Err(err).Msg("invalid live event payload")
			return
		}
		if envelope.Source == s.nodeID {
			return
		}
		s.fanout(envelope.Event)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to live events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain live events subscription")
		}
	}()
}

func (s *liveService) Broadcast(event dto.LiveEvent) {
	s.fanout(event)

	if s.nats == nil || s.natsSubject == "" {
		return
	}

	payload, err := json.Marshal(liveEventEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		return
	}
	if err := s.nats.Publish(s.natsSubject, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish live event")
	}
}

func (s *liveService) fanout(event dto.LiveEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *liveService) Subscribe() (<-chan dto.LiveEvent, func()) {
	channel := make(chan dto.LiveEvent, liveBufferSize)

	s.mu.Lock()
	s.subscribers[channel] = struct{}{}
	s.mu.Unlock()
	observability.LiveClientsActive().Inc()

	cleanup := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[channel]; ok {
			delete(s.subscribers, channel)
			close(channel)
		}
		s.mu.Unlock()
		observability.LiveClientsActive().Dec()
	}

	return channel, cleanup
}
