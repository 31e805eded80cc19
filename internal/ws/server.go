package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/livewhisper/internal/audio"
	"github.com/obiente/translate/livewhisper/internal/translation"
)

const readTimeout = 60 * time.Second

// Server accepts websocket clients that stream audio into the live session
// and receive transcripts back.
type Server struct {
	upgrader   websocket.Upgrader
	ingest     *audio.PushSource
	translator *translation.Client
	log        zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	seq     int
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	language     string
	targets      []string
	alternatives int
}

func (c *client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) settings() (string, []string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language, append([]string(nil), c.targets...), c.alternatives
}

// NewServer builds a server. ingest may be nil, in which case audio chunks
// are rejected; translator may be nil to disable translations.
func NewServer(ingest *audio.PushSource, translator *translation.Client, log zerolog.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		ingest:     ingest,
		translator: translator,
		log:        log.With().Str("component", "ws").Logger(),
		clients:    make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(readTimeout)) })

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.writeJSON(map[string]any{"type": "error", "detail": "invalid json"})
			continue
		}
		switch msg["type"] {
		case "ping":
			_ = c.writeJSON(map[string]any{"type": "pong", "ts": msg["ts"]})
		case "start":
			s.configure(c, msg)
			_ = c.writeJSON(map[string]any{"type": "started"})
		case "chunk":
			if detail := s.ingestChunk(msg); detail != "" {
				_ = c.writeJSON(map[string]any{"type": "error", "detail": detail})
			}
		case "stop":
			_ = c.writeJSON(map[string]any{"type": "stopped"})
			return
		default:
			_ = c.writeJSON(map[string]any{"type": "error", "detail": "unknown message type"})
		}
	}
}

func (s *Server) configure(c *client, msg map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := msg["language"].(string); ok {
		c.language = v
	}
	if v, ok := msg["target_languages"].([]any); ok {
		c.targets = c.targets[:0]
		for _, lang := range v {
			if l, ok := lang.(string); ok && l != "" {
				c.targets = append(c.targets, l)
			}
		}
	}
	if v, ok := msg["translation_alternatives"].(float64); ok {
		c.alternatives = int(v)
	}
	s.log.Info().
		Str("source_lang", c.language).
		Strs("target_langs", c.targets).
		Int("alternatives", c.alternatives).
		Msg("client configured")
}

// ingestChunk returns an error detail for the client, or "" on success.
func (s *Server) ingestChunk(msg map[string]any) string {
	if s.ingest == nil {
		return "audio ingest disabled"
	}
	b64, _ := msg["data"].(string)
	if b64 == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "invalid base64 audio"
	}

	var (
		pcm []float32
		sr  int
	)
	switch mt, _ := msg["mime_type"].(string); mt {
	case "audio/pcm", "audio/L16", "audio/pcm16":
		pcm, sr, err = audio.DecodePCM16LEToFloat32(raw, int(asFloat(msg["sample_rate"])))
	default:
		pcm, sr, err = audio.DecodeWAVToFloat32(raw)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("audio decode failed")
		return "decode audio failed"
	}
	if len(pcm) > 0 && sr != audio.SampleRate && sr > 0 {
		pcm = audio.ResampleLinear(pcm, sr, audio.SampleRate)
	}
	if !s.ingest.Push(pcm) && len(pcm) > 0 {
		return "transcription not running"
	}
	s.log.Debug().Int("chunk_samples", len(pcm)).Msg("audio chunk received")
	return ""
}

// Broadcast sends text to every connected client, translated per client
// when it asked for target languages.
func (s *Server) Broadcast(text string) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		go s.send(c, text, seq)
	}
}

func (s *Server) send(c *client, text string, seq int) {
	lang, targets, alts := c.settings()
	payload := map[string]any{
		"type":     "transcript",
		"text":     text,
		"language": lang,
		"sequence": seq,
	}
	if s.translator != nil && len(targets) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.translator.Timeout())
		defer cancel()
		if m, err := s.translator.Translate(ctx, text, lang, targets, alts); err != nil {
			s.log.Warn().Err(err).Str("text", text).Msg("translation request failed")
		} else if len(m) > 0 {
			payload["translations"] = m
		}
	}
	if err := c.writeJSON(payload); err != nil {
		s.log.Warn().Err(err).Msg("failed to send transcript")
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
