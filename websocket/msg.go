package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kenaz/models"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// MsgType discriminates wire messages.
type MsgType string

const (
	MsgTypePingRequest  MsgType = "ping_request"
	MsgTypePingResponse MsgType = "ping_response"

	MsgTypeRegisterRequest       MsgType = "register_request"
	MsgTypeRegisterPolledRequest MsgType = "register_polled_request"
	MsgTypeRegisterResponse      MsgType = "register_response"
	MsgTypeUnregisterRequest     MsgType = "unregister_request"
	MsgTypeUnregisterResponse    MsgType = "unregister_response"

	MsgTypePoseUpdate   MsgType = "object_pose_update"
	MsgTypeCameraUpdate MsgType = "camera_update"

	MsgTypeConfigureRequest  MsgType = "configure_request"
	MsgTypeConfigureResponse MsgType = "configure_response"

	MsgTypeVisibleQueryRequest    MsgType = "visible_query_request"
	MsgTypeVisibleQueryResponse   MsgType = "visible_query_response"
	MsgTypeUpdatableQueryRequest  MsgType = "updatable_query_request"
	MsgTypeUpdatableQueryResponse MsgType = "updatable_query_response"

	MsgTypeDebugInfoRequest  MsgType = "debug_info_request"
	MsgTypeDebugInfoResponse MsgType = "debug_info_response"

	MsgTypeErrorResponse MsgType = "error_response"
	MsgTypeSyncClock     MsgType = "sync_clock"
)

// ErrorCode qualifies an error response.
type ErrorCode string

const (
	ErrorCodeBadRequest        ErrorCode = "bad_request"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeAlreadyRegistered ErrorCode = "already_registered"
	ErrorCodeInternal          ErrorCode = "internal_server_error"
)

// Msg is a received wire message: its decoded type discriminator and the raw
// JSON payload to decode into a concrete request.
type Msg struct {
	Type MsgType
	Data []byte
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message payload failed").
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// Send encodes v as JSON and writes it as a single frame. Returns the frame
// size.
func Send(conn *websocket.Conn, v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, errors.New("encoding message failed").Wrap(err)
	}
	if err := websocket.Message.Send(conn, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Receive reads one frame and decodes its type discriminator. The payload is
// kept raw for the handler to decode. Returns the frame size.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return Msg{}, 0, err
	}

	var head struct {
		Type MsgType `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return Msg{}, len(b), errors.New("decoding message type failed").Wrap(err)
	}

	return Msg{Type: head.Type, Data: b}, len(b), nil
}

// Pose is the wire form of a world pose.
type Pose struct {
	PX float64 `json:"px"`
	PY float64 `json:"py"`
	PZ float64 `json:"pz"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
	RZ float64 `json:"rz"`
	RW float64 `json:"rw"`
}

func (p Pose) ToModel() models.Pose {
	return models.Pose{
		PX: p.PX,
		PY: p.PY,
		PZ: p.PZ,
		RX: p.RX,
		RY: p.RY,
		RZ: p.RZ,
		RW: p.RW,
	}
}

// Extents is the wire form of bounding half extents.
type Extents struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (e Extents) ToModel() models.Extents {
	return models.Extents{X: e.X, Y: e.Y, Z: e.Z}
}

type Request struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`
}

type Response struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

type ErrorResponse struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
	Code      ErrorCode `json:"code"`
}

type RegisterRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`
	Pose      Pose    `json:"pose"`
	Extents   Extents `json:"extents"`
}

type RegisterResponse struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
	Handle    uint32    `json:"handle"`
}

type UnregisterRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`
	Handle    uint32  `json:"handle"`
}

type PoseUpdate struct {
	Type    MsgType  `json:"type"`
	Handle  uint32   `json:"handle"`
	Pose    Pose     `json:"pose"`
	Extents *Extents `json:"extents,omitempty"`
}

type CameraUpdate struct {
	Type        MsgType `json:"type"`
	Pose        Pose    `json:"pose"`
	Fov         float64 `json:"fov"`
	AspectRatio float64 `json:"aspect_ratio"`
}

type ConfigureRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`

	// Zero values keep the current setting.
	VoxelSize          float64       `json:"voxel_size,omitempty"`
	RenderDistance     float64       `json:"render_distance,omitempty"`
	BestRefreshPeriod  time.Duration `json:"best_refresh_period,omitempty"`
	WorstRefreshPeriod time.Duration `json:"worst_refresh_period,omitempty"`
	TargetQueryTime    time.Duration `json:"target_query_time,omitempty"`
	GracePeriod        time.Duration `json:"grace_period,omitempty"`
}

type VisibleQueryRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`

	// Limit bounds the number of handles returned; zero means no limit.
	// The traversal is abandoned once the limit is reached.
	Limit int `json:"limit,omitempty"`
}

type VisibleQueryResponse struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
	Handles   []uint32  `json:"handles"`
}

type UpdatableQueryRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`
	Limit     int     `json:"limit,omitempty"`

	// BudgetMS abandons the traversal once that many milliseconds have
	// been spent on it; zero means no budget.
	BudgetMS int `json:"budget_ms,omitempty"`
}

type UpdatableObject struct {
	Handle  uint32        `json:"handle"`
	Elapsed time.Duration `json:"elapsed"`
}

type UpdatableQueryResponse struct {
	Type      MsgType           `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID uint32            `json:"request_id"`
	Objects   []UpdatableObject `json:"objects"`
}

type DebugInfoRequest struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id"`
}

type DebugInfoResponse struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`

	TrackedObjects   int     `json:"tracked_objects"`
	PolledObjects    int     `json:"polled_objects"`
	OccupiedVoxels   int     `json:"occupied_voxels"`
	ReindexBacklog   int     `json:"reindex_backlog"`
	VisibleCacheSize int     `json:"visible_cache_size"`
	FalloffExponent  float64 `json:"falloff_exponent"`
}

type SyncClock struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
