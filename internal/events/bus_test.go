package events

import (
	"testing"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusScopesEventsByVisitor(t *testing.T) {
	bus := NewBus(nil)
	alice := bus.Subscribe("alice")
	bob := bus.Subscribe("bob")
	all := bus.Subscribe("")
	defer alice.Cancel()
	defer bob.Cancel()
	defer all.Cancel()

	bus.SetNavbarVisible("alice", false)

	ev := receive(t, alice)
	require.Equal(t, TopicNavbar, ev.Topic)
	require.Equal(t, NavbarVisibility{Visible: false}, ev.Payload)
	require.Equal(t, TopicNavbar, receive(t, all).Topic)

	select {
	case ev := <-bob.C:
		t.Fatalf("bob received alice's event: %+v", ev)
	default:
	}
}

func TestBusBroadcastReachesEveryone(t *testing.T) {
	bus := NewBus(nil)
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")
	defer a.Cancel()
	defer b.Cancel()

	bus.Publish(TopicContactBanner, "", ContactBanner{Status: "idle"})
	require.Equal(t, TopicContactBanner, receive(t, a).Topic)
	require.Equal(t, TopicContactBanner, receive(t, b).Topic)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("v")
	defer sub.Cancel()

	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		bus.SetNavbarVisible("v", i%2 == 0)
	}
	require.Len(t, sub.C, defaultSubscriberBuffer)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("v")
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.C
	require.False(t, ok)
	bus.SetNavbarVisible("v", true)
}

func TestBusImplementsObserver(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("v")
	defer sub.Cancel()

	var obs chat.Observer = bus
	obs.StateChanged(chat.StateEvent{VisitorID: "v", State: chat.StateSending})
	obs.MessageFinalized(chat.FinalizedEvent{VisitorID: "v"})

	first := receive(t, sub)
	second := receive(t, sub)
	require.Equal(t, TopicChatState, first.Topic)
	require.Equal(t, TopicChatFinalized, second.Topic)
	require.Less(t, first.ID, second.ID)
}
