package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"narrato-backend/internal/models"
)

// ProgressPublisher pushes pipeline step updates onto the per-segment
// pub/sub channel the WebSocket hub fans out.
type ProgressPublisher struct {
	redis *redis.Client
}

func NewProgressPublisher(redisClient *redis.Client) *ProgressPublisher {
	return &ProgressPublisher{redis: redisClient}
}

func (p *ProgressPublisher) Publish(segmentID uuid.UUID, lang models.Language, step string) {
	msg := models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			SegmentID: segmentID,
			Language:  lang,
			Step:      step,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	p.redis.Publish(context.Background(), "segment_updates:"+segmentID.String(), data)
}
