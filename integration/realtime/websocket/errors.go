package websocket

import "errors"

var (
	ErrEmptyURL          = errors.New("realtime websocket: empty URL")
	ErrTransportClosed   = errors.New("realtime websocket: transport is closed")
	ErrSocketClosed      = errors.New("realtime websocket: socket closed")
	ErrHeartbeatTimeout  = errors.New("realtime websocket: heartbeat timed out")
	ErrJoinRejected      = errors.New("realtime websocket: join rejected")
	ErrJoinTimeout       = errors.New("realtime websocket: join timed out")
	ErrChannelClosed     = errors.New("realtime websocket: channel closed by server")
	ErrDuplicateTopic    = errors.New("realtime websocket: topic already joined")
)
