package domain

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "tempo/internal/platform/errors"
)

type OpType string

const (
	OpPut    OpType = "put"
	OpDelete OpType = "delete"
)

func (o OpType) Validate() error {
	switch o {
	case OpPut, OpDelete:
		return nil
	default:
		return fmt.Errorf("%w: op type %q", apperrors.ErrInvalidInput, o)
	}
}

// Item is one mutation that failed to reach the remote store. Seq is
// assigned by the queue and fixes replay order; LocalID survives the
// round trip so a replayed create still correlates with its optimistic
// cache entry.
type Item struct {
	Seq        int64           `json:"seq"`
	LocalID    string          `json:"local_id"`
	OpType     OpType          `json:"op_type"`
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (i Item) Validate() error {
	if err := i.OpType.Validate(); err != nil {
		return err
	}
	if i.Collection == "" {
		return fmt.Errorf("%w: collection is required", apperrors.ErrInvalidInput)
	}
	// A put may omit the key: the server assigns one on replay, and the
	// LocalRef inside the payload correlates the confirmation. A delete
	// must name its target.
	if i.Key == "" && i.OpType == OpDelete {
		return fmt.Errorf("%w: delete item has no key", apperrors.ErrInvalidInput)
	}
	if i.OpType == OpPut && len(i.Payload) == 0 {
		return fmt.Errorf("%w: put item has no payload", apperrors.ErrInvalidInput)
	}
	return nil
}
