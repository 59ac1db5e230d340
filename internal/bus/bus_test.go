package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub := b.Subscribe(TopicNodeStatus)

	b.Publish(TopicNodeStatus, "n1")

	select {
	case got := <-sub:
		if got != "n1" {
			t.Errorf("received %v, want n1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMultipleSubscribersReceiveSameMessage(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub1 := b.Subscribe(TopicAlert)
	sub2 := b.Subscribe(TopicAlert)

	b.Publish(TopicAlert, 42)

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case got := <-sub:
			if got != 42 {
				t.Errorf("subscriber %d received %v, want 42", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub := b.Subscribe(TopicDeviceMetric)
	b.Unsubscribe(sub, TopicDeviceMetric)

	b.Publish(TopicDeviceMetric, "dropped")

	select {
	case v, ok := <-sub:
		if ok {
			t.Errorf("received %v after unsubscribe", v)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnTopics(t *testing.T) {
	if got := ConnState("topology"); got != "conn.topology.state" {
		t.Errorf("ConnState = %q, want conn.topology.state", got)
	}
	if got := ConnMessage("alerts"); got != "conn.alerts.message" {
		t.Errorf("ConnMessage = %q, want conn.alerts.message", got)
	}
}
