package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/BaSui01/swarmflow/types"
)

// subprotocol is negotiated during the websocket upgrade.
const subprotocol = "swarmflow"

// Frame types. hello and welcome only appear during the handshake; after
// that the gateway sends exchange, reset, and best requests and the agent
// answers each with a result frame carrying the same sequence number.
const (
	frameHello    = "hello"
	frameWelcome  = "welcome"
	frameExchange = "exchange"
	frameReset    = "reset"
	frameBest     = "best"
	frameResult   = "result"
)

// workerInfo is the handshake payload describing a connecting worker. The
// gateway caches it so handle introspection never goes over the wire.
type workerInfo struct {
	ID          string          `json:"id"`
	Direction   types.Direction `json:"direction"`
	MaxIters    int             `json:"max_iters"`
	RewardLimit float64         `json:"reward_limit"`
}

// frame is the single message shape on the wire. Unused fields are omitted,
// so a reset request is just {"type":"reset","seq":N}.
type frame struct {
	Type    string             `json:"type"`
	Seq     uint64             `json:"seq,omitempty"`
	Info    *workerInfo        `json:"info,omitempty"`
	Batch   *types.ExportBatch `json:"batch,omitempty"`
	Best    *types.Candidate   `json:"best,omitempty"`
	HasBest bool               `json:"has_best,omitempty"`
	Err     *types.Error       `json:"error,omitempty"`
}

// writeFrame marshals and sends one frame. Websocket connections do not
// support concurrent writes; callers with concurrent writers hold their own
// mutex around this.
func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// readFrame reads and decodes the next frame. Read errors are returned
// unwrapped so callers can inspect the websocket close status.
func readFrame(ctx context.Context, conn *websocket.Conn) (frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// wireError shapes err for a result frame. Structured errors cross the wire
// as they are; anything else is wrapped under the fallback code.
func wireError(err error, fallback types.ErrorCode) *types.Error {
	if err == nil {
		return nil
	}
	var terr *types.Error
	if errors.As(err, &terr) {
		return terr
	}
	return types.NewError(fallback, err.Error())
}
