package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("lesionscan:job:%s:status", jobID)
}

func RateLimitKey(clientID string) string {
	return fmt.Sprintf("lesionscan:ratelimit:%s", clientID)
}
