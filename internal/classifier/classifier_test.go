package classifier

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmakovicka/nfblock/internal/blocklist"
)

const (
	blockedIP = uint32(0x0a000005)
	cleanIP   = uint32(0xc0a80001)
	otherIP   = uint32(0x0b000001)

	acceptMark = uint32(0x10)
	rejectMark = uint32(0x20)
)

type recorder struct {
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.events = append(r.events, e)
}

func testList(t *testing.T) *blocklist.Blocklist {
	t.Helper()
	b := blocklist.New(zerolog.Nop())
	b.Append(0x0a000000, 0x0a0000ff, "ten")
	b.Append(0x0a000000, 0x0a00000f, "ten-low")
	b.Append(0x0b000000, 0x0b000000, "eleven")
	b.Append(0x0b000001, 0x0b000001, "eleven-adjacent")
	b.Finalize()
	return b
}

func TestDecisionTable(t *testing.T) {
	type want struct {
		verdict Verdict
		mark    uint32
	}

	tests := []struct {
		name       string
		hook       Hook
		src, dst   uint32
		withMarks  want
		withoutAny want
	}{
		{"in match", HookLocalIn, blockedIP, cleanIP, want{VerdictDrop, 0}, want{VerdictDrop, 0}},
		{"in no match", HookLocalIn, cleanIP, blockedIP, want{VerdictRepeat, acceptMark}, want{VerdictAccept, 0}},
		{"out match", HookLocalOut, cleanIP, blockedIP, want{VerdictRepeat, rejectMark}, want{VerdictDrop, 0}},
		{"out no match", HookLocalOut, blockedIP, cleanIP, want{VerdictRepeat, acceptMark}, want{VerdictAccept, 0}},
		{"fwd src match", HookForward, blockedIP, cleanIP, want{VerdictRepeat, rejectMark}, want{VerdictDrop, 0}},
		{"fwd dst match", HookForward, cleanIP, blockedIP, want{VerdictRepeat, rejectMark}, want{VerdictDrop, 0}},
		{"fwd both match", HookForward, blockedIP, otherIP, want{VerdictRepeat, rejectMark}, want{VerdictDrop, 0}},
		{"fwd no match", HookForward, cleanIP, cleanIP, want{VerdictRepeat, acceptMark}, want{VerdictAccept, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0)
			pkt := Packet{Hook: tt.hook, Src: tt.src, Dst: tt.dst}

			c := New(testList(t), Config{AcceptMark: acceptMark, RejectMark: rejectMark}, nil)
			d := c.Classify(pkt, now)
			assert.True(t, d.Handled)
			assert.Equal(t, tt.withMarks.verdict, d.Verdict)
			assert.Equal(t, tt.withMarks.mark, d.Mark)

			c = New(testList(t), Config{}, nil)
			d = c.Classify(pkt, now)
			assert.True(t, d.Handled)
			assert.Equal(t, tt.withoutAny.verdict, d.Verdict)
			assert.Equal(t, tt.withoutAny.mark, d.Mark)
		})
	}

	t.Run("other hooks are not handled", func(t *testing.T) {
		c := New(testList(t), Config{AcceptMark: acceptMark, RejectMark: rejectMark}, nil)
		for _, h := range []Hook{HookPreRouting, HookPostRouting, Hook(9)} {
			d := c.Classify(Packet{Hook: h, Src: blockedIP, Dst: blockedIP}, time.Now())
			assert.False(t, d.Handled, h.String())
		}
	})
}

func TestRateLimit(t *testing.T) {
	rec := &recorder{}
	list := testList(t)
	c := New(list, Config{}, rec)

	start := time.Unix(1_700_000_000, 0)
	pkt := Packet{Hook: HookLocalIn, Src: blockedIP}

	c.Classify(pkt, start)
	c.Classify(pkt, start.Add(30*time.Second))
	require.Len(t, rec.events, 1)
	assert.Equal(t, 1, rec.events[0].Hits)

	c.Classify(pkt, start.Add(61*time.Second))
	require.Len(t, rec.events, 2)
	assert.Equal(t, 3, rec.events[1].Hits)
	assert.Equal(t, start.Add(61*time.Second), rec.events[1].Time)

	r, _ := list.Find(blockedIP, nil)
	require.NotNil(t, r)
	assert.Equal(t, 3, r.Hits)
	assert.Equal(t, start.Add(61*time.Second), r.LastHit)
}

func TestEventContents(t *testing.T) {
	t.Run("incoming carries attribution", func(t *testing.T) {
		rec := &recorder{}
		c := New(testList(t), Config{RejectMark: rejectMark}, rec)
		c.Classify(Packet{Hook: HookLocalIn, Src: blockedIP}, time.Unix(100, 0))

		require.Len(t, rec.events, 1)
		e := rec.events[0]
		assert.Equal(t, HookLocalIn, e.Hook)
		assert.Equal(t, SideSource, e.Side)
		assert.Equal(t, "10.0.0.5", e.AddressString())
		assert.ElementsMatch(t, []string{"ten", "ten-low"}, e.Labels)
		assert.Equal(t, ActionDrop, e.Action)
	})

	t.Run("outgoing with reject mark is marked", func(t *testing.T) {
		rec := &recorder{}
		c := New(testList(t), Config{RejectMark: rejectMark}, rec)
		c.Classify(Packet{Hook: HookLocalOut, Dst: 0x0a000080}, time.Unix(100, 0))

		require.Len(t, rec.events, 1)
		assert.Equal(t, SideDestination, rec.events[0].Side)
		assert.Equal(t, []string{"ten"}, rec.events[0].Labels)
		assert.Equal(t, ActionMarked, rec.events[0].Action)
	})

	t.Run("forward reports each matching side", func(t *testing.T) {
		rec := &recorder{}
		list := testList(t)
		c := New(list, Config{}, rec)
		now := time.Unix(1000, 0)

		c.Classify(Packet{Hook: HookForward, Src: blockedIP, Dst: otherIP}, now)
		require.Len(t, rec.events, 2)
		assert.Equal(t, SideSource, rec.events[0].Side)
		assert.Equal(t, SideDestination, rec.events[1].Side)
		assert.Equal(t, []string{"eleven-adjacent"}, rec.events[1].Labels)

		c.Classify(Packet{Hook: HookForward, Src: blockedIP, Dst: cleanIP}, now.Add(30*time.Second))
		assert.Len(t, rec.events, 2)

		c.Classify(Packet{Hook: HookForward, Src: blockedIP, Dst: cleanIP}, now.Add(61*time.Second))
		require.Len(t, rec.events, 3)
		assert.Equal(t, SideSource, rec.events[2].Side)
		assert.Equal(t, 3, rec.events[2].Hits)

		c.Classify(Packet{Hook: HookForward, Src: cleanIP, Dst: otherIP}, now.Add(90*time.Second))
		require.Len(t, rec.events, 4)
		assert.Equal(t, 2, rec.events[3].Hits)

		// The source alone would be due again, but the destination was
		// reported more recently and holds back the whole packet.
		c.Classify(Packet{Hook: HookForward, Src: blockedIP, Dst: otherIP}, now.Add(125*time.Second))
		assert.Len(t, rec.events, 4)
	})
}

func TestNoBlocklist(t *testing.T) {
	c := New(nil, Config{}, nil)
	d := c.Classify(Packet{Hook: HookLocalIn, Src: blockedIP}, time.Now())
	assert.Equal(t, VerdictAccept, d.Verdict)

	c.SetBlocklist(testList(t))
	d = c.Classify(Packet{Hook: HookLocalIn, Src: blockedIP}, time.Now())
	assert.Equal(t, VerdictDrop, d.Verdict)
	assert.True(t, d.Blocked)
}

func BenchmarkClassify(b *testing.B) {
	list := blocklist.New(zerolog.Nop())
	for i := uint32(0); i < 100000; i++ {
		list.Append(i<<12, i<<12+100, "bench")
	}
	list.Finalize()

	c := New(list, Config{RejectMark: rejectMark}, nil)
	now := time.Now()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify(Packet{Hook: HookForward, Src: uint32(i) * 2654435761, Dst: uint32(i)}, now)
	}
}
