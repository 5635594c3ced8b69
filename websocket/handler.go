package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Receiver reads the next inbound message.
type Receiver func() (Msg, int, error)

// Sender writes an outbound message and reports its size.
type Sender func(v any) (int, error)

// ResponseSender sends messages from within a message handler.
type ResponseSender interface {
	// Queues v for sending to the connected client.
	Send(v any)
}

// Handler represents a kenaz connection handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to track an object.
	HandleRegister(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to track an object without change notifications.
	HandleRegisterPolled(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to stop tracking an object.
	HandleUnregister(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles an object pose update.
	HandlePoseUpdate(ctx context.Context, msg Msg) error

	// Handles an observer camera update.
	HandleCameraUpdate(ctx context.Context, msg Msg) error

	// Handles a request to reconfigure the engine.
	HandleConfigure(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a visibility query.
	HandleVisibleQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a query for objects due for a refresh.
	HandleUpdatableQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request for engine internals.
	HandleDebugInfo(ctx context.Context, respond ResponseSender, msg Msg) error

	// Sends a sync clock message to the client.
	SendSyncClock(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender used to send outgoing messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The interval between each sync clock message sent to the connected
	// client.
	SyncClockInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the connection id.
	GetClientID() string
}

// Handle serves the connection with the given handler until the client
// disconnects or ctx is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The Kenaz handler.
	Handler Handler

	sendChan       chan any
	sender         Sender
	receiver       Receiver
	receiveChan    chan Msg
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan any, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiver = h.Handler.Receiver()
	h.receiveChan = make(chan Msg, receiveChanSize)

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	syncClockTicker := time.NewTicker(h.Handler.SyncClockInterval())
	defer syncClockTicker.Stop()

	responder := responseSender{send: h.send}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-syncClockTicker.C:
			if err := h.Handler.SendSyncClock(ctx, responder); err != nil {
				h.disconnect(errors.New("sending sync clock failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(v any) {
	h.sendChan <- v
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypePingRequest:
		return h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeRegisterRequest:
		return h.Handler.HandleRegister(ctx, responder, msg)

	case MsgTypeRegisterPolledRequest:
		return h.Handler.HandleRegisterPolled(ctx, responder, msg)

	case MsgTypeUnregisterRequest:
		return h.Handler.HandleUnregister(ctx, responder, msg)

	case MsgTypePoseUpdate:
		return h.Handler.HandlePoseUpdate(ctx, msg)

	case MsgTypeCameraUpdate:
		return h.Handler.HandleCameraUpdate(ctx, msg)

	case MsgTypeConfigureRequest:
		return h.Handler.HandleConfigure(ctx, responder, msg)

	case MsgTypeVisibleQueryRequest:
		return h.Handler.HandleVisibleQuery(ctx, responder, msg)

	case MsgTypeUpdatableQueryRequest:
		return h.Handler.HandleUpdatableQuery(ctx, responder, msg)

	case MsgTypeDebugInfoRequest:
		return h.Handler.HandleDebugInfo(ctx, responder, msg)

	default:
		responder.Send(ErrorResponse{
			Type:      MsgTypeErrorResponse,
			Timestamp: time.Now(),
			Code:      ErrorCodeBadRequest,
		})
		return nil
	}
}

func (h *handler) disconnect(err error) {
	h.disconnectChan <- err
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(v any)
}

func (r responseSender) Send(v any) {
	r.send(v)
}
