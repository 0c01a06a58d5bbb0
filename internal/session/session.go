// Package session implements the per-TCP-connection life cycle: login,
// admission against the device allow-list, stream framing, and
// acknowledgments. A Session owns its buffer and never shares state with
// other connections.
package session

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/model"
	"avl-gateway/internal/observability"
)

// Connection states.
const (
	StateAwaitingLogin = "awaiting_login"
	StateAwaitingAuth  = "awaiting_auth"
	StateStreaming     = "streaming"
	StateClosed        = "closed"
)

// Transition events.
const (
	eventLogin      = "login"
	eventAuthorize  = "authorize"
	eventDeny       = "deny"
	eventDisconnect = "disconnect"
)

// Unauthenticated connections are cut after this long.
const LoginTimeout = 15 * time.Second

// Login replies.
var (
	loginAccept = []byte{0x01}
	loginReject = []byte{0x00}
)

// DeviceDirectory is the slice of the store the session needs for admission.
type DeviceDirectory interface {
	GetDevice(ctx context.Context, imei string) (*model.Device, error)
}

// Inbound is one successfully decoded AVL frame, handed to the caller after
// the ack is queued. Persistence happens downstream; the ack never waits on
// it.
type Inbound struct {
	Frame  []byte
	Packet *codec.DecodedPacket
}

// Result is everything one Feed call produced.
type Result struct {
	Replies  [][]byte  // write to the socket, in order
	Packets  []Inbound // decoded AVL frames to persist
	Commands []string  // Codec 12 response texts
	Close    bool      // peer must be disconnected after replies are written
}

type Session struct {
	Remote     string
	Imei       string
	Vin        string
	DeviceType string
	LastByteAt time.Time

	machine   *fsm.FSM
	buf       []byte
	directory DeviceDirectory
	logger    *zap.Logger
}

func New(remote string, directory DeviceDirectory, logger *zap.Logger) *Session {
	s := &Session{
		Remote:     remote,
		directory:  directory,
		logger:     logger.With(zap.String("remote", remote)),
		LastByteAt: time.Now(),
	}
	s.machine = fsm.NewFSM(
		StateAwaitingLogin,
		fsm.Events{
			{Name: eventLogin, Src: []string{StateAwaitingLogin}, Dst: StateAwaitingAuth},
			{Name: eventAuthorize, Src: []string{StateAwaitingAuth}, Dst: StateStreaming},
			{Name: eventDeny, Src: []string{StateAwaitingAuth}, Dst: StateClosed},
			{Name: eventDisconnect, Src: []string{StateAwaitingLogin, StateAwaitingAuth, StateStreaming}, Dst: StateClosed},
		},
		fsm.Callbacks{},
	)
	return s
}

func (s *Session) State() string { return s.machine.Current() }

// Authenticated reports whether the connection passed admission.
func (s *Session) Authenticated() bool { return s.machine.Current() == StateStreaming }

// Disconnect moves the session to closed on peer close or socket error.
func (s *Session) Disconnect(ctx context.Context) {
	if s.machine.Current() != StateClosed {
		_ = s.machine.Event(ctx, eventDisconnect)
	}
}

// Feed consumes freshly read bytes and drains every complete frame currently
// buffered. Partial frames stay buffered for the next read.
func (s *Session) Feed(ctx context.Context, data []byte) Result {
	s.LastByteAt = time.Now()
	s.buf = append(s.buf, data...)

	var res Result
	for {
		switch s.machine.Current() {
		case StateAwaitingLogin:
			if !s.feedLogin(ctx, &res) {
				return res
			}
		case StateStreaming:
			if !s.feedFrame(&res) {
				return res
			}
		default:
			return res
		}
		if res.Close {
			return res
		}
	}
}

// feedLogin consumes the login frame: 2-byte big-endian length (must be 15)
// followed by 15 ASCII digits. Malformed logins get no reply; the buffer is
// dropped and the inactivity timer eventually closes the connection.
func (s *Session) feedLogin(ctx context.Context, res *Result) bool {
	if len(s.buf) < 2 {
		return false
	}
	length := int(binary.BigEndian.Uint16(s.buf))
	if length != 15 {
		s.logger.Warn("malformed login frame", zap.Int("declared_length", length))
		s.buf = nil
		return false
	}
	if len(s.buf) < 2+15 {
		return false
	}
	imei := string(s.buf[2:17])
	s.buf = s.buf[17:]
	if !model.ValidImei(imei) {
		s.logger.Warn("login with non-numeric imei", zap.String("imei", imei))
		s.buf = nil
		return false
	}

	_ = s.machine.Event(ctx, eventLogin)
	s.authorize(ctx, imei, res)
	return true
}

// authorize consults the allow-list: the device must exist and be approved.
func (s *Session) authorize(ctx context.Context, imei string, res *Result) {
	var dev *model.Device
	var err error
	if s.directory != nil {
		dev, err = s.directory.GetDevice(ctx, imei)
	}
	if s.directory == nil || err != nil || !dev.Approved {
		if err != nil {
			s.logger.Warn("admission lookup failed", zap.String("imei", imei), zap.Error(err))
		}
		observability.LoginsRejected.Inc()
		res.Replies = append(res.Replies, loginReject)
		res.Close = true
		_ = s.machine.Event(ctx, eventDeny)
		return
	}
	observability.LoginsAccepted.Inc()

	s.Imei = imei
	s.Vin = dev.Vin
	s.DeviceType = dev.ModemType
	res.Replies = append(res.Replies, loginAccept)
	_ = s.machine.Event(ctx, eventAuthorize)
	s.logger.Info("device authorized", zap.String("imei", imei), zap.String("modem", s.DeviceType))
}

// feedFrame slices one complete AVL frame off the buffer and decodes it.
// Decode errors drop the frame and keep the connection open, without a reply:
// the device retransmits on its own schedule.
func (s *Session) feedFrame(res *Result) bool {
	size, err := codec.FrameSize(s.buf)
	if err != nil {
		// Unframeable garbage; resynchronization is hopeless, drop it all.
		s.logger.Warn("unframeable bytes", zap.String("imei", s.Imei), zap.Error(err))
		s.buf = nil
		return false
	}
	if size == 0 || len(s.buf) < size {
		return false
	}
	frame := make([]byte, size)
	copy(frame, s.buf[:size])
	s.buf = s.buf[size:]

	if codec.IsCodec12(frame) {
		if text, err := codec.ParseCodec12Response(frame); err == nil {
			res.Commands = append(res.Commands, text)
		} else {
			s.logger.Warn("bad codec 12 response", zap.String("imei", s.Imei), zap.Error(err))
		}
		return true
	}

	pkt, err := codec.DecodePacket(frame)
	if err != nil {
		observability.DecodeErrors.Inc()
		s.logger.Warn("frame decode failed", zap.String("imei", s.Imei), zap.Error(err))
		return true
	}
	observability.FramesDecoded.Inc()

	if calc := codec.PayloadCRC(frame); uint32(calc) != pkt.CRC {
		observability.CRCMismatches.Inc()
		// Observed field traffic includes frames with unsigned CRCs; log and
		// accept for compatibility.
		s.logger.Warn("crc mismatch",
			zap.String("imei", s.Imei),
			zap.Uint32("declared", pkt.CRC),
			zap.Uint16("computed", calc))
	}

	ack := make([]byte, 4)
	binary.BigEndian.PutUint32(ack, uint32(pkt.NumberOfData1))
	res.Replies = append(res.Replies, ack)
	res.Packets = append(res.Packets, Inbound{Frame: frame, Packet: pkt})
	return true
}
