package http

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
}

// rtpSocket forwards relayed packets of one remote track to a websocket as
// binary frames.
type rtpSocket struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}

	dropped atomic.Uint64
}

func newRTPSocket(conn *websocket.Conn, buffer int) *rtpSocket {
	return &rtpSocket{conn: conn, send: make(chan []byte, buffer), done: make(chan struct{})}
}

// WriteRTP drops packets while the socket is behind and never blocks the relay.
func (s *rtpSocket) WriteRTP(pkt *rtp.Packet) error {
	b, err := pkt.Marshal()
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case s.send <- b:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *rtpSocket) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *rtpSocket) writePump() {
	defer s.close()
	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away.
func (s *rtpSocket) readPump() {
	defer s.close()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func parseKind(s string) (webrtc.RTPCodecType, bool) {
	switch s {
	case "audio":
		return webrtc.RTPCodecTypeAudio, true
	case "video":
		return webrtc.RTPCodecTypeVideo, true
	}
	return 0, false
}

func (h *handlers) mediaSocket(c *gin.Context) {
	if h.d.Relays == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "media relay disabled"})
		return
	}
	id := domain.CanonicalID(c.Param("participant"))
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "kind must be audio or video"})
		return
	}
	if !h.d.Relays.Has(id) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no media for participant"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "adapters.http").Err(err).Msg("media ws upgrade failed")
		return
	}
	key := c.GetString(clientTokenKey) + "/" + kind.String()
	sock := newRTPSocket(ws, 256)
	if !h.d.Relays.AddSink(id, kind, key, sock) {
		sock.close()
		return
	}
	logger := log.With().Str("module", "adapters.http").Str("participant", id.String()).Str("kind", kind.String()).Logger()
	logger.Info().Msg("media socket attached")

	go sock.writePump()
	go func() {
		sock.readPump()
		h.d.Relays.RemoveSink(id, key)
		logger.Info().Uint64("dropped", sock.dropped.Load()).Msg("media socket detached")
	}()
}
