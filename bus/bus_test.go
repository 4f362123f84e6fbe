package bus

import (
	"fmt"
	"testing"

	"github.com/packgate/packgate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signal(session string, seq int) packgate.DriftSignal {
	return packgate.DriftSignal{
		ID:        fmt.Sprintf("%s#%d", session, seq),
		SessionID: session,
		Kind:      packgate.SignalClean,
	}
}

func TestBus_PublishOrder(t *testing.T) {
	b := New()
	defer b.Close()

	ch := b.Subscribe("s1")
	for i := 0; i < 100; i++ {
		b.Publish(signal("s1", i))
	}

	for i := 0; i < 100; i++ {
		got := <-ch
		assert.Equal(t, fmt.Sprintf("s1#%d", i), got.ID)
	}
}

func TestBus_BuffersBeforeSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	// Publish first, attach the consumer later.
	b.Publish(signal("s1", 0))
	b.Publish(signal("s1", 1))

	ch := b.Subscribe("s1")
	assert.Equal(t, "s1#0", (<-ch).ID)
	assert.Equal(t, "s1#1", (<-ch).ID)
}

func TestBus_SessionsIndependent(t *testing.T) {
	b := New()
	defer b.Close()

	chA := b.Subscribe("a")
	chB := b.Subscribe("b")
	b.Publish(signal("b", 0))
	b.Publish(signal("a", 0))

	assert.Equal(t, "a#0", (<-chA).ID)
	assert.Equal(t, "b#0", (<-chB).ID)
}

func TestBus_CloseSessionDrainsThenCloses(t *testing.T) {
	b := New()
	defer b.Close()

	ch := b.Subscribe("s1")
	b.Publish(signal("s1", 0))
	b.CloseSession("s1")

	got, ok := <-ch
	require.True(t, ok, "pending signal delivered before close")
	assert.Equal(t, "s1#0", got.ID)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after drain")
}

func TestBus_PublishAfterCloseDropped(t *testing.T) {
	b := New()
	ch := b.Subscribe("s1")
	b.Close()

	b.Publish(signal("s1", 0))

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_ClosedSessionStaysClosed(t *testing.T) {
	b := New()
	defer b.Close()

	b.Subscribe("s1")
	b.CloseSession("s1")
	b.Publish(signal("s1", 0))

	_, ok := <-b.Subscribe("s1")
	assert.False(t, ok, "post-close publish dropped, channel stays closed")
}

func TestBus_CloseSessionWithoutSubscriberDropsLaterPublishes(t *testing.T) {
	b := New()
	defer b.Close()

	b.CloseSession("s1")
	b.Publish(signal("s1", 0))

	_, ok := <-b.Subscribe("s1")
	assert.False(t, ok)
}

func TestBus_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := New()
	b.Close()

	_, ok := <-b.Subscribe("s1")
	assert.False(t, ok)
}

func TestBus_SubscribeTwiceSameChannel(t *testing.T) {
	b := New()
	defer b.Close()

	first := b.Subscribe("s1")
	second := b.Subscribe("s1")
	assert.Equal(t, first, second, "single consumer per session")
}
