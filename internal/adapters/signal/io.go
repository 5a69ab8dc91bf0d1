package signal

import (
	"context"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) writePump(ctx context.Context, conn *WsSignalConn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.signal").Msg("writePump ctx done")
			return
		case <-conn.done:
			return
		case data, ok := <-conn.send:
			if !ok {
				log.Debug().Str("module", "adapters.signal").Msg("writePump channel closed")
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "adapters.signal").Str("sid", c.sid).Msg("readPump closing")
		close(conn.done)
		conn.Close()
	}()

	pongWait := c.opts.PingPeriod * 10 / 9
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.signal").Str("sid", c.sid).Msg("readPump ctx done")
			return
		default:
		}
		kind, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "adapters.signal").Str("sid", c.sid).Msg("readPump read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.mu.RLock()
		fn := c.onFrame
		c.mu.RUnlock()
		if fn != nil {
			fn(core.Frame(data))
		}
	}
}
