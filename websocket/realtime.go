package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kenaz/engine"
	"github.com/aukilabs/kenaz/featureflag"
	"github.com/aukilabs/kenaz/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// RealtimeHandler serves one observer: it owns a per-connection engine fed
// by client-pushed poses and camera state, and answers visibility and
// refresh-scheduling queries over it.
//
// All message handling happens on the connection goroutine, which makes it
// the engine's single caller.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The engine tunables the connection starts with.
	EngineConfig engine.Config

	FeatureFlags featureflag.FeatureFlag

	conn     *websocket.Conn
	clientID string

	engine  *engine.Engine
	poses   *poseStore
	camera  *models.CameraStore
	handles *models.HandleAllocator
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	h.clientID = uuid.NewString()

	cfg := h.EngineConfig
	h.FeatureFlags.IfSet(featureflag.FlagDisableTemporalCache, func() {
		cfg.DisableTemporalCache = true
	})
	h.FeatureFlags.IfSet(featureflag.FlagDisableAdaptiveFalloff, func() {
		cfg.DisableAdaptiveFalloff = true
	})
	h.FeatureFlags.IfSet(featureflag.FlagDisableThrottling, func() {
		cfg.DisableThrottling = true
	})

	h.poses = newPoseStore()
	h.camera = &models.CameraStore{}
	h.handles = &models.HandleAllocator{}
	h.engine = engine.New(cfg, h.poses, h.camera)
	h.engine.SetNotifier(h.poses)
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(Response{
		Type:      MsgTypePingResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleRegister(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handleRegister(respond, msg, h.engine.Register)
}

func (h *RealtimeHandler) HandleRegisterPolled(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handleRegister(respond, msg, h.engine.RegisterPolled)
}

func (h *RealtimeHandler) handleRegister(respond ResponseSender, msg Msg, register func(uint32) error) error {
	var req RegisterRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	handle := h.handles.New()
	h.poses.Set(handle, req.Pose.ToModel(), req.Extents.ToModel())

	if err := register(handle); err != nil {
		h.poses.Delete(handle)
		h.handles.Release(handle)

		code := ErrorCodeInternal
		if errors.IsType(err, engine.ErrTypeAlreadyRegistered) {
			code = ErrorCodeAlreadyRegistered
		}
		respond.Send(ErrorResponse{
			Type:      MsgTypeErrorResponse,
			Timestamp: time.Now(),
			RequestID: req.RequestID,
			Code:      code,
		})
		return errors.New("registering object failed").Wrap(err)
	}

	respond.Send(RegisterResponse{
		Type:      MsgTypeRegisterResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
		Handle:    handle,
	})
	return nil
}

func (h *RealtimeHandler) HandleUnregister(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req UnregisterRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if !h.poses.Contains(req.Handle) {
		respond.Send(ErrorResponse{
			Type:      MsgTypeErrorResponse,
			Timestamp: time.Now(),
			RequestID: req.RequestID,
			Code:      ErrorCodeNotFound,
		})
		return nil
	}

	h.engine.Unregister(req.Handle)
	h.poses.Delete(req.Handle)
	h.handles.Release(req.Handle)

	respond.Send(Response{
		Type:      MsgTypeUnregisterResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandlePoseUpdate(ctx context.Context, msg Msg) error {
	var update PoseUpdate
	if err := msg.DataTo(&update); err != nil {
		return err
	}

	// Updates for unknown handles are dropped silently, like the engine
	// drops notifications for stale handles.
	if !h.poses.Contains(update.Handle) {
		return nil
	}

	extents, _ := h.poses.Extents(update.Handle)
	if update.Extents != nil {
		extents = update.Extents.ToModel()
	}
	h.poses.Set(update.Handle, update.Pose.ToModel(), extents)
	return nil
}

func (h *RealtimeHandler) HandleCameraUpdate(ctx context.Context, msg Msg) error {
	var update CameraUpdate
	if err := msg.DataTo(&update); err != nil {
		return err
	}

	h.camera.SetCamera(models.Camera{
		Pose:        update.Pose.ToModel(),
		Fov:         update.Fov,
		AspectRatio: update.AspectRatio,
	})
	return nil
}

func (h *RealtimeHandler) HandleConfigure(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req ConfigureRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	var denied bool
	h.FeatureFlags.IfSet(featureflag.FlagDisableClientConfigure, func() {
		denied = true
	})
	if denied {
		respond.Send(ErrorResponse{
			Type:      MsgTypeErrorResponse,
			Timestamp: time.Now(),
			RequestID: req.RequestID,
			Code:      ErrorCodeBadRequest,
		})
		return nil
	}

	cfg := h.engine.Config()
	if req.VoxelSize > 0 {
		cfg.VoxelSize = req.VoxelSize
	}
	if req.RenderDistance > 0 {
		cfg.RenderDistance = req.RenderDistance
	}
	if req.BestRefreshPeriod > 0 {
		cfg.BestRefreshPeriod = req.BestRefreshPeriod
	}
	if req.WorstRefreshPeriod > 0 {
		cfg.WorstRefreshPeriod = req.WorstRefreshPeriod
	}
	if req.TargetQueryTime > 0 {
		cfg.TargetQueryTime = req.TargetQueryTime
	}
	if req.GracePeriod > 0 {
		cfg.GracePeriod = req.GracePeriod
	}
	h.engine.SetConfig(cfg)

	respond.Send(Response{
		Type:      MsgTypeConfigureResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleVisibleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req VisibleQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	handles := []uint32{}
	for handle := range h.engine.QueryVisible() {
		handles = append(handles, handle)
		if req.Limit > 0 && len(handles) == req.Limit {
			break
		}
	}

	respond.Send(VisibleQueryResponse{
		Type:      MsgTypeVisibleQueryResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
		Handles:   handles,
	})
	return nil
}

func (h *RealtimeHandler) HandleUpdatableQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req UpdatableQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	start := time.Now()
	budget := time.Duration(req.BudgetMS) * time.Millisecond

	objects := []UpdatableObject{}
	for handle, elapsed := range h.engine.QueryUpdatable() {
		objects = append(objects, UpdatableObject{
			Handle:  handle,
			Elapsed: elapsed,
		})
		if req.Limit > 0 && len(objects) == req.Limit {
			break
		}
		if budget > 0 && time.Since(start) >= budget {
			break
		}
	}

	respond.Send(UpdatableQueryResponse{
		Type:      MsgTypeUpdatableQueryResponse,
		Timestamp: time.Now(),
		RequestID: req.RequestID,
		Objects:   objects,
	})
	return nil
}

func (h *RealtimeHandler) HandleDebugInfo(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req DebugInfoRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	var denied bool
	h.FeatureFlags.IfSet(featureflag.FlagDisableDebugInfo, func() {
		denied = true
	})
	if denied {
		respond.Send(ErrorResponse{
			Type:      MsgTypeErrorResponse,
			Timestamp: time.Now(),
			RequestID: req.RequestID,
			Code:      ErrorCodeNotFound,
		})
		return nil
	}

	info := h.engine.DebugInfo()

	respond.Send(DebugInfoResponse{
		Type:             MsgTypeDebugInfoResponse,
		Timestamp:        time.Now(),
		RequestID:        req.RequestID,
		TrackedObjects:   info.TrackedObjects,
		PolledObjects:    info.PolledObjects,
		OccupiedVoxels:   info.OccupiedVoxels,
		ReindexBacklog:   info.ReindexBacklog,
		VisibleCacheSize: info.VisibleCacheSize,
		FalloffExponent:  info.FalloffExponent,
	})
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond ResponseSender) error {
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableSyncClock, func() {
		respond.Send(SyncClock{
			Type:      MsgTypeSyncClock,
			Timestamp: time.Now(),
		})
	})
	return nil
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(v any) (int, error) {
		return Send(h.conn, v)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}
