package vobj

import (
	"context"
	"encoding/json"

	"github.com/beadwright/orchestrator/channel"
)

// EchoHandler returns the incoming payload unchanged. Useful as a smoke
// test for the object manager's wiring.
type EchoHandler struct{ EmbeddableHandler }

func (EchoHandler) HandleMessage(_ context.Context, msg channel.Message, _ Context) HandlerResponse {
	return Success(msg.Payload)
}

// counterOp is the shape of a CounterHandler message payload.
type counterOp struct {
	Operation string `json:"operation"`
	Amount    int64  `json:"amount"`
}

// CounterHandler maintains an int64 counter named "count" in object state,
// driven by a JSON payload of {"operation": "increment|decrement|get|reset",
// "amount": N}. amount defaults to 1 for increment/decrement.
type CounterHandler struct{ EmbeddableHandler }

func (CounterHandler) OnInit(_ context.Context, hc Context) {
	if !hc.State.Contains("count") {
		hc.State.Set("count", int64(0))
	}
}

func (CounterHandler) HandleMessage(_ context.Context, msg channel.Message, hc Context) HandlerResponse {
	var op counterOp
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &op); err != nil {
			return ErrorResponse("BAD_PAYLOAD", err.Error())
		}
	}
	amount := op.Amount
	if amount == 0 {
		amount = 1
	}

	current := hc.State.GetInt64("count")
	switch op.Operation {
	case "increment":
		current += amount
		hc.State.Set("count", current)
	case "decrement":
		current -= amount
		hc.State.Set("count", current)
	case "reset":
		current = 0
		hc.State.Set("count", current)
	case "get", "":
		// no mutation
	default:
		return ErrorResponse("UNKNOWN_OPERATION", "unknown operation: "+op.Operation)
	}

	payload, err := json.Marshal(map[string]int64{"count": current})
	if err != nil {
		return ErrorResponse("ENCODE_FAILED", err.Error())
	}
	return Success(payload)
}
