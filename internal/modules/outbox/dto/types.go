package dto

import (
	"encoding/json"
	"time"
)

type EnqueueInput struct {
	LocalID    string
	OpType     string
	Collection string
	Key        string
	Payload    json.RawMessage
}

type ItemOutput struct {
	Seq        int64
	LocalID    string
	OpType     string
	Collection string
	Key        string
	CreatedAt  time.Time
}

type DrainOutput struct {
	Drained   int
	Remaining int
}
