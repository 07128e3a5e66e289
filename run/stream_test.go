package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/runflow/types"
)

func collectFrames(t *testing.T, frames <-chan Frame) []Frame {
	t.Helper()
	var out []Frame
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-deadline:
			t.Fatal("timed out draining frames")
		}
	}
}

func TestMultiplex_OneFramePerModePerEvent(t *testing.T) {
	events := make(chan StreamEvent, 4)
	events <- StreamEvent{Event: EngineEvent{Node: "plan", Data: map[string]any{"step": 1}}}
	events <- StreamEvent{Event: EngineEvent{Node: "act", Data: map[string]any{"step": 2}}}
	events <- StreamEvent{Terminal: true, Kind: TerminalCompleted, Payload: map[string]any{"answer": "done"}}
	close(events)

	frames := collectFrames(t, Multiplex(events, []types.StreamMode{types.StreamModeValues, types.StreamModeUpdates}))

	// Two engine events x two modes, then exactly one terminal frame.
	require.Len(t, frames, 5)
	assert.Equal(t, "values", frames[0].Mode)
	assert.Equal(t, "updates", frames[1].Mode)
	assert.Equal(t, "values", frames[2].Mode)
	assert.Equal(t, "updates", frames[3].Mode)
	assert.Equal(t, string(TerminalCompleted), frames[4].Mode)
}

func TestMultiplex_TerminalStopsStream(t *testing.T) {
	events := make(chan StreamEvent, 3)
	events <- StreamEvent{Terminal: true, Kind: TerminalInterrupt, Payload: "waiting"}
	// Anything after terminal must not be delivered.
	events <- StreamEvent{Event: EngineEvent{Data: "late"}}
	close(events)

	frames := collectFrames(t, Multiplex(events, []types.StreamMode{types.StreamModeValues}))

	require.Len(t, frames, 1)
	assert.Equal(t, "interrupt", frames[0].Mode)
	assert.Equal(t, "waiting", frames[0].Data)
}

func TestBroadcaster_ReplayToLateSubscriber(t *testing.T) {
	b := newBroadcaster()
	b.publish(StreamEvent{Event: EngineEvent{Data: 1}})
	b.publish(StreamEvent{Event: EngineEvent{Data: 2}})

	ch, cancel := b.subscribe()
	defer cancel()

	b.publish(StreamEvent{Terminal: true, Kind: TerminalCompleted})

	var got []StreamEvent
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Event.Data)
	assert.Equal(t, 2, got[1].Event.Data)
	assert.True(t, got[2].Terminal)
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := newBroadcaster()
	b.publish(StreamEvent{Event: EngineEvent{Data: "only"}})
	b.publish(StreamEvent{Terminal: true, Kind: TerminalError, Payload: "boom"})

	ch, cancel := b.subscribe()
	defer cancel()

	var got []StreamEvent
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, TerminalError, got[1].Kind)
}

func TestBroadcaster_PublishAfterCloseDropped(t *testing.T) {
	b := newBroadcaster()
	b.publish(StreamEvent{Terminal: true, Kind: TerminalCancelled})
	b.publish(StreamEvent{Event: EngineEvent{Data: "late"}})

	ch, _ := b.subscribe()
	var got []StreamEvent
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].Terminal)
}

func TestBroadcaster_CancelDetaches(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()
	cancel()

	// Publishing after detach must not panic or block.
	b.publish(StreamEvent{Event: EngineEvent{Data: "x"}})

	_, open := <-ch
	assert.False(t, open)

	cancel() // idempotent
}
