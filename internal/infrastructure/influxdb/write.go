package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

// Measurement and tag names written for bridge events.
const (
	measurementBridgeEvent = "bridge_event"

	tagClient  = "client"
	tagEvent   = "event"
	tagOutcome = "outcome"
	tagReason  = "reason"

	outcomeDispatched = "dispatched"
	outcomeDropped    = "dropped"
)

// EventDispatched implements binding.Observer.
//
// Each event becomes one point tagged with the client and event kind:
//
//	bridge_event,client=1,event=connect-result,outcome=dispatched count=1i
func (c *Client) EventDispatched(kind binding.EventKind, id binding.ClientID) {
	c.writeEvent(kind, id, outcomeDispatched, "")
}

// EventDropped implements binding.Observer. The drop reason is an extra tag.
func (c *Client) EventDropped(kind binding.EventKind, id binding.ClientID, reason binding.DropReason) {
	c.writeEvent(kind, id, outcomeDropped, string(reason))
}

func (c *Client) writeEvent(kind binding.EventKind, id binding.ClientID, outcome, reason string) {
	tags := map[string]string{
		tagClient:  strconv.Itoa(int(id)),
		tagEvent:   kind.String(),
		tagOutcome: outcome,
	}
	if reason != "" {
		tags[tagReason] = reason
	}
	c.WritePoint(measurementBridgeEvent, tags, map[string]any{"count": 1})
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("bridge_clients",
//	    map[string]string{"host": "edge-01"},
//	    map[string]any{"registered": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
