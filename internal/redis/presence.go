package redisc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umar/roomchat/internal/models"
)

const (
	presenceTTL = 120 * time.Second
	onlineSet   = "online_participants"
)

func presenceKey(p models.Participant) string { return "presence:" + p.Key() }

// Presence is the cross-instance online registry. A participant stays in
// the online set while its presence key is alive; instances refresh the
// key for their connections so a crashed instance ages out.
type Presence struct {
	client *redis.Client
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func (p *Presence) SetOnline(ctx context.Context, who models.Participant) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, onlineSet, who.Key())
	pipe.Set(ctx, presenceKey(who), "online", presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set online %s: %w", who, err)
	}
	return nil
}

func (p *Presence) SetOffline(ctx context.Context, who models.Participant) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, onlineSet, who.Key())
	pipe.Del(ctx, presenceKey(who))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set offline %s: %w", who, err)
	}
	return nil
}

// Refresh extends the presence of every participant connected here.
func (p *Presence) Refresh(ctx context.Context, connected []models.Participant) error {
	if len(connected) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, who := range connected {
		pipe.SAdd(ctx, onlineSet, who.Key())
		pipe.Set(ctx, presenceKey(who), "online", presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// IsOnline reports which of candidates currently hold a connection on any
// instance.
func (p *Presence) IsOnline(ctx context.Context, candidates []models.Participant) (map[models.Participant]bool, error) {
	out := make(map[models.Participant]bool, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}
	pipe := p.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(candidates))
	for i, who := range candidates {
		cmds[i] = pipe.Exists(ctx, presenceKey(who))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check presence: %w", err)
	}
	for i, who := range candidates {
		out[who] = cmds[i].Val() > 0
	}
	return out, nil
}
