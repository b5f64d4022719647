package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pinwall/boardsync/internal/board"
)

func TestKindKnown(t *testing.T) {
	for _, k := range []Kind{
		KindItemCreated, KindItemUpdated, KindItemDeleted,
		KindConnectionCreated, KindConnectionDeleted,
		KindPresence, KindFocus, KindCursor, KindTextCursor, KindUserLeft,
	} {
		if !k.Known() {
			t.Fatalf("kind %s should be known", k)
		}
	}
	if Kind("bogus").Known() {
		t.Fatalf("unknown kind must not pass")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindItemUpdated, "b1", "u1", ItemUpdate{
		Variant: board.VariantNote, ID: "n1", X: f(12.5),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var update ItemUpdate
	if err := DecodePayload(back, &update); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if update.ID != "n1" || update.X == nil || *update.X != 12.5 {
		t.Fatalf("unexpected payload: %+v", update)
	}
	if update.Y != nil {
		t.Fatalf("untouched fields must stay nil, got %v", *update.Y)
	}
}

func TestPartialUpdateOmitsNilFields(t *testing.T) {
	raw, _ := json.Marshal(ItemUpdate{Variant: board.VariantNote, ID: "n1", Color: s("red")})
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, has := m["x"]; has {
		t.Fatalf("nil fields must not appear on the wire: %v", m)
	}
	if m["color"] != "red" {
		t.Fatalf("set fields must appear: %v", m)
	}
}

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }
