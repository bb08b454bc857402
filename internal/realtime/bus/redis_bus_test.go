package bus

import (
	"testing"

	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	"github.com/NotARoomba/canvas/internal/realtime"
)

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage(`{"channel":"lesson:1","event":"lesson.updated","data":{"id":"1"}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Channel != "lesson:1" || msg.Event != realtime.SSEEventLessonUpdated {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := decodeMessage(`{"event":"lesson.updated"}`); err == nil {
		t.Fatalf("message without channel should be rejected")
	}
	if _, err := decodeMessage(`nope`); err == nil {
		t.Fatalf("garbage should be rejected")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(testutil.Logger(t), RedisConfig{}); err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
	if _, err := NewRedisBus(nil, RedisConfig{Addr: "localhost:6379"}); err == nil {
		t.Fatalf("expected error without logger")
	}
}
