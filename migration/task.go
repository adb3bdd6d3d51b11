package migration

import (
	"context"
	"encoding/binary"
	"regexp"
	"strings"

	"github.com/mesosphere/schemamigrate/errors"
)

// TaskKeyPrefix is the key prefix of the post-0.13 task key shape,
// "task:<taskId>". Keys of that shape contain no further colon after the
// prefix.
const TaskKeyPrefix = "task:"

// legacyTaskKeyPattern selects pre-0.13 task keys: a colon followed by a
// dotted identifier, as in "task:<appId>:<taskId>" where taskId is
// "<app>.<uuid>".
var legacyTaskKeyPattern = regexp.MustCompile(`^.*:.*\..*$`)

// Task is a single task record as the rekey step sees it: the identifier
// that becomes the new key, plus the record payload carried over verbatim.
type Task struct {
	ID      string
	Payload []byte
}

// TaskRepository is the task store collaborator consumed by the rekey step.
// It exposes the underlying entity store's key space directly because the
// step must see and remove keys in the legacy shape, not just well-formed
// tasks.
type TaskRepository interface {
	// Keys enumerates every key managed by the task store, legacy or
	// current shape alike.
	Keys(ctx context.Context) ([]string, error)

	// LoadBytes returns the raw bytes stored under key, or nil if the
	// key does not exist.
	LoadBytes(ctx context.Context, key string) ([]byte, error)

	// Store persists t under the current key shape, "task:<t.ID>".
	Store(ctx context.Context, t Task) error

	// Expunge removes key and reports whether it existed.
	Expunge(ctx context.Context, key string) (bool, error)
}

// isLegacyTaskKey reports whether key is in the pre-0.13 shape and must be
// rekeyed. Keys already in the "task:<taskId>" shape match the legacy
// pattern too (task ids contain a dot), so the current shape is excluded
// explicitly; this keeps the step re-entrant after a crash mid-rekey.
func isLegacyTaskKey(key string) bool {
	if !legacyTaskKeyPattern.MatchString(key) {
		return false
	}
	if strings.HasPrefix(key, TaskKeyPrefix) && !strings.Contains(key[len(TaskKeyPrefix):], ":") {
		return false
	}
	return true
}

// decodeLegacyTask decodes a pre-0.13 task blob: a 4-byte big-endian size
// prefix, then that many payload bytes. The payload opens with its own
// 4-byte big-endian length-prefixed task identifier; whatever follows the
// identifier is the record body, carried over opaquely. Any malformed or
// empty record fails with errors.ErrCorruptLegacyTask.
func decodeLegacyTask(b []byte) (Task, error) {
	if len(b) < 4 {
		return Task{}, errors.ErrCorruptLegacyTask.Newf("record too short: %d bytes", len(b))
	}
	size := binary.BigEndian.Uint32(b[:4])
	payload := b[4:]
	if uint32(len(payload)) != size {
		return Task{}, errors.ErrCorruptLegacyTask.Newf("declared size %d does not match payload size %d", size, len(payload))
	}
	if size == 0 {
		return Task{}, errors.ErrCorruptLegacyTask.New("empty record")
	}
	if len(payload) < 4 {
		return Task{}, errors.ErrCorruptLegacyTask.Newf("payload too short for id prefix: %d bytes", len(payload))
	}
	idLen := binary.BigEndian.Uint32(payload[:4])
	if idLen == 0 {
		return Task{}, errors.ErrCorruptLegacyTask.New("empty task id")
	}
	if uint32(len(payload)-4) < idLen {
		return Task{}, errors.ErrCorruptLegacyTask.Newf("declared id length %d exceeds payload", idLen)
	}
	id := string(payload[4 : 4+idLen])
	body := append([]byte(nil), payload[4+idLen:]...)
	return Task{ID: id, Payload: body}, nil
}

// encodeLegacyTask is the inverse of decodeLegacyTask. The engine itself
// never writes the legacy format; this exists so tests and fixtures can
// construct pre-0.13 blobs.
func encodeLegacyTask(t Task) []byte {
	payload := make([]byte, 4+len(t.ID)+len(t.Payload))
	binary.BigEndian.PutUint32(payload[:4], uint32(len(t.ID)))
	copy(payload[4:], t.ID)
	copy(payload[4+len(t.ID):], t.Payload)

	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}
