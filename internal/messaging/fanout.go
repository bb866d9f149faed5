package messaging

import (
	"context"

	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/metrics"
	"github.com/umar/roomchat/internal/models"
)

// publish hands one event to the publisher. Delivery is at most once: the
// write it reports has already committed, so failures are logged, counted
// and dropped.
func (s *Service) publish(ctx context.Context, channel, eventType string, payload any) {
	ctx = context.WithoutCancel(ctx)

	evt, err := events.New(eventType, payload)
	if err != nil {
		s.log.Error("failed to encode event", "type", eventType, "error", err)
		metrics.PublishFailures.WithLabelValues(eventType).Inc()
		return
	}
	if err := s.pub.Publish(ctx, channel, evt); err != nil {
		s.log.Warn("failed to publish event", "type", eventType, "channel", channel, "error", err)
		metrics.PublishFailures.WithLabelValues(eventType).Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// broadcastToRoom sends to everyone subscribed to the room channel, the
// actor included.
func (s *Service) broadcastToRoom(ctx context.Context, roomID, eventType string, payload any) {
	s.publish(ctx, events.RoomChannel(roomID), eventType, payload)
}

// notifyOthersInRoom sends on the personal channel of every member except
// actor, so members who are not viewing the room are reached as well.
// payload builds the event for one recipient.
func (s *Service) notifyOthersInRoom(ctx context.Context, members []models.Membership, actor models.Participant, eventType string, payload func(models.Membership) any) {
	for _, m := range members {
		if m.Participant == actor {
			continue
		}
		s.notifyParticipant(ctx, m.Participant, eventType, payload(m))
	}
}

func (s *Service) notifyParticipant(ctx context.Context, p models.Participant, eventType string, payload any) {
	s.publish(ctx, events.ParticipantChannel(p), eventType, payload)
}
