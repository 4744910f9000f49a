package bridge

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"smartbus/internal/location"
)

// fakeSurface records every message the channel forwards and can be made
// to fail sends.
type fakeSurface struct {
	mu   sync.Mutex
	sent []Message
	fail bool
}

func (f *fakeSurface) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("surface gone")
	}
	m, err := Decode(data)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSurface) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSurface) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func sample(lat, lng float64) location.Sample {
	return location.Sample{Lat: lat, Lng: lng, Timestamp: time.Now()}
}

func TestBuffersLatestSampleUntilAttach(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}

	ch.SendUser(sample(19.01, 72.85))
	ch.SendUser(sample(19.02, 72.86))
	ch.SendUser(sample(19.03, 72.87))
	if got := surf.messages(); len(got) != 0 {
		t.Fatalf("nothing may be forwarded before attach, got %d", len(got))
	}
	if ch.State() != StateUninitialized {
		t.Fatalf("state = %v, want uninitialized", ch.State())
	}

	ch.Attach(surf)

	got := surf.messages()
	if len(got) != 1 {
		t.Fatalf("flush forwarded %d messages, want 1", len(got))
	}
	if got[0].Type != TypeUser || !got[0].Initial {
		t.Errorf("flushed message = %+v, want initial user", got[0])
	}
	if got[0].Lat != 19.03 || got[0].Lng != 72.87 {
		t.Errorf("flushed the wrong sample: %+v, want the latest", got[0])
	}
	if ch.State() != StateActive {
		t.Errorf("state = %v, want active", ch.State())
	}
}

func TestExactlyOneInitialPerSession(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}

	ch.SendUser(sample(19.0, 72.8))
	ch.Attach(surf)
	ch.SendUser(sample(19.1, 72.9))
	ch.SendUser(sample(19.2, 73.0))

	initials := 0
	for _, m := range surf.messages() {
		if m.Type == TypeUser && m.Initial {
			initials++
		}
	}
	if initials != 1 {
		t.Errorf("delivered %d initial messages, want exactly 1", initials)
	}
	if first := surf.messages()[0]; !first.Initial {
		t.Errorf("the first user message must carry initial, got %+v", first)
	}
}

func TestInitialOnFirstSendWhenNothingBuffered(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.SendUser(sample(19.0, 72.8))
	ch.SendUser(sample(19.1, 72.9))

	got := surf.messages()
	if len(got) != 2 {
		t.Fatalf("forwarded %d, want 2", len(got))
	}
	if !got[0].Initial || got[1].Initial {
		t.Errorf("initial flags = %v,%v, want true,false", got[0].Initial, got[1].Initial)
	}
}

func TestBusesDroppedWhileUninitialized(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}

	ch.SendBuses([]BusPosition{{ID: "b1", Name: "Bus 1", Lat: 19.07, Lng: 72.87}})
	ch.Attach(surf)
	if got := surf.messages(); len(got) != 0 {
		t.Fatalf("stale broadcast must not be replayed after attach, got %d", len(got))
	}

	ch.SendBuses([]BusPosition{{ID: "b1", Name: "Bus 1", Lat: 19.08, Lng: 72.88}})
	got := surf.messages()
	if len(got) != 1 || got[0].Type != TypeBuses {
		t.Fatalf("active broadcast should forward, got %+v", got)
	}
	if got[0].Buses[0].ID != "b1" || got[0].Buses[0].Lat != 19.08 {
		t.Errorf("broadcast payload = %+v", got[0].Buses)
	}
}

func TestInvalidCoordinatesNeverForwarded(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.SendUser(sample(math.NaN(), 72.87))
	ch.SendUser(sample(91.0, 72.87))
	ch.SendUser(sample(19.07, -190.0))
	ch.SendBuses([]BusPosition{
		{ID: "ok", Lat: 19.07, Lng: 72.87},
		{ID: "bad", Lat: math.Inf(1), Lng: 72.87},
	})

	if got := surf.messages(); len(got) != 0 {
		t.Errorf("invalid coordinates must be dropped, forwarded %d", len(got))
	}
}

func TestPlacedAckUpdatesStateAndTriggersNothing(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.HandleInbound([]byte(`{"type":"placed","lat":19.07,"lng":72.87}`))

	placed, ok := ch.LastPlaced()
	if !ok || placed.Lat != 19.07 || placed.Lng != 72.87 {
		t.Errorf("LastPlaced = %+v ok=%v, want 19.07,72.87", placed, ok)
	}
	if got := surf.messages(); len(got) != 0 {
		t.Errorf("placed ack must not trigger outbound messages, got %d", len(got))
	}
}

func TestMalformedAndUnknownInboundDropped(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.HandleInbound([]byte(`{not json`))
	ch.HandleInbound([]byte(`{"lat":1}`))
	ch.HandleInbound([]byte(`{"type":"zoom","level":12}`))
	ch.HandleInbound([]byte(`{"type":"placed","lat":999,"lng":72.87}`))

	if _, ok := ch.LastPlaced(); ok {
		t.Errorf("no valid placed ack was delivered, LastPlaced should be unset")
	}
}

func TestInboundIgnoresUnknownFields(t *testing.T) {
	ch := NewChannel(nil)
	ch.Attach(&fakeSurface{})

	ch.HandleInbound([]byte(`{"zoom":15,"type":"placed","lng":72.87,"lat":19.07,"extra":{"a":1}}`))

	placed, ok := ch.LastPlaced()
	if !ok || placed.Lat != 19.07 {
		t.Errorf("order-independent decode with unknown fields failed: %+v ok=%v", placed, ok)
	}
}

func TestTransportErrorSwallowedInitialRetained(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{fail: true}

	ch.SendUser(sample(19.0, 72.8))
	ch.Attach(surf) // flush fails; must not panic or re-queue

	surf.setFail(false)
	ch.SendUser(sample(19.1, 72.9))

	got := surf.messages()
	if len(got) != 1 {
		t.Fatalf("forwarded %d, want 1 (failed flush is not replayed)", len(got))
	}
	if !got[0].Initial {
		t.Errorf("initial must carry over to the first successful user send")
	}
	if got[0].Lat != 19.1 {
		t.Errorf("retry uses current state, not the failed sample: %+v", got[0])
	}
}

func TestResendUserForcesInitial(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.ResendUser() // nothing sampled yet
	if len(surf.messages()) != 0 {
		t.Fatalf("resend with no sample must be a no-op")
	}

	ch.SendUser(sample(19.0, 72.8))
	ch.ResendUser()

	got := surf.messages()
	if len(got) != 2 {
		t.Fatalf("forwarded %d, want 2", len(got))
	}
	if !got[1].Initial || got[1].Lat != 19.0 {
		t.Errorf("resend = %+v, want last sample with initial forced", got[1])
	}
}

func TestAttachTwiceDoesNotReflush(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}

	ch.SendUser(sample(19.0, 72.8))
	ch.Attach(surf)
	ch.Attach(surf)

	if got := surf.messages(); len(got) != 1 {
		t.Errorf("second attach re-flushed: %d messages", len(got))
	}
}

func TestCloseIsIdempotentAndGuardsCompletions(t *testing.T) {
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)
	ch.SendUser(sample(19.0, 72.8))

	ch.Close()
	ch.Close()

	ch.SendUser(sample(19.1, 72.9))
	ch.SendBuses([]BusPosition{{ID: "b1", Lat: 19.07, Lng: 72.87}})
	ch.HandleInbound([]byte(`{"type":"placed","lat":19.07,"lng":72.87}`))

	if got := surf.messages(); len(got) != 1 {
		t.Errorf("completions after close must not forward, got %d", len(got))
	}
	if _, ok := ch.LastPlaced(); ok {
		t.Errorf("inbound after close must not mutate state")
	}
}

func TestDeniedSessionTransmitsNoUserMessage(t *testing.T) {
	// Permission denial upstream means SendUser is simply never called;
	// the bridge must stay quiet and healthy for bus traffic.
	ch := NewChannel(nil)
	surf := &fakeSurface{}
	ch.Attach(surf)

	ch.SendBuses([]BusPosition{{ID: "b1", Name: "Bus 1", Lat: 19.07, Lng: 72.87}})

	for _, m := range surf.messages() {
		if m.Type == TypeUser {
			t.Errorf("user message transmitted without samples: %+v", m)
		}
	}
	if len(surf.messages()) != 1 {
		t.Errorf("bus traffic should still flow, got %d messages", len(surf.messages()))
	}
}
