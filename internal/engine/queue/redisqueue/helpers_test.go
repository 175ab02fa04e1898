package redisqueue

import "github.com/google/uuid"

func newExecID() uuid.UUID {
	return uuid.New()
}
