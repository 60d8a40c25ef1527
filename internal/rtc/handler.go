package rtc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// ErrInvalidOffer is returned for a missing or malformed SDP offer.
var ErrInvalidOffer = errors.New("invalid offer")

const (
	sampleRate = 16000
	// chunkBytes is 100ms of 16 kHz mono PCM16.
	chunkBytes = 3200
	// maxFrameSamples fits a 120ms Opus frame at 16 kHz.
	maxFrameSamples = 1920
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Target receives microphone audio and control-channel commands from a peer.
type Target interface {
	Audio(pcm []byte)
	Start()
	Stop()
	Generate()
	DoneSpeaking()
}

// Handler accepts companion microphone peers.
type Handler struct {
	iceServers []webrtc.ICEServer
}

// NewHandler builds a handler from a JSON array of ICE servers. An empty or
// invalid value falls back to a public STUN server.
func NewHandler(iceServersJSON string) *Handler {
	return &Handler{iceServers: parseICEServers(iceServersJSON)}
}

// HandleOffer accepts an SDP offer and returns an SDP answer. Decoded audio
// from the peer's first audio track is delivered to target until the peer
// disconnects or ctx is cancelled.
func (h *Handler) HandleOffer(ctx context.Context, user string, offer SessionDescription, target Target) (SessionDescription, error) {
	if offer.Type != "offer" || strings.TrimSpace(offer.SDP) == "" {
		return SessionDescription{}, ErrInvalidOffer
	}
	connID := user + "/" + uuid.NewString()[:8]

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: h.iceServers})
	if err != nil {
		return SessionDescription{}, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}

	pcCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-pcCtx.Done()
		_ = pc.Close()
	}()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] PeerConnection state: %s", connID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			cancel()
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", connID, state.String())
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] Control channel opened", connID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if !dispatchCommand(target, string(msg.Data)) {
				log.Printf("[%s] unknown control command %q", connID, msg.Data)
			}
		})
	})

	var started atomic.Bool
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio || !started.CompareAndSwap(false, true) {
			return
		}
		log.Printf("[%s] Remote audio track received: codec=%s", connID, remote.Codec().MimeType)

		dec, err := opus.NewDecoder(sampleRate, 1)
		if err != nil {
			log.Printf("[%s] Opus decoder error: %v", connID, err)
			return
		}
		go readMic(pcCtx, connID, remote, dec, target)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		cancel()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cancel()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		cancel()
		return SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-pcCtx.Done():
		return SessionDescription{}, pcCtx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		cancel()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// readMic decodes RTP payloads until the track ends.
func readMic(ctx context.Context, connID string, remote *webrtc.TrackRemote, dec *opus.Decoder, target Target) {
	var buf chunker
	samples := make([]int16, maxFrameSamples)
	for ctx.Err() == nil {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			log.Printf("[%s] RTP read error: %v", connID, err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, samples)
		if err != nil {
			log.Printf("[%s] Opus decode error: %v", connID, err)
			continue
		}
		buf.push(samples[:n], target.Audio)
	}
}

// chunker packs decoded samples into fixed-size little-endian PCM16 chunks.
type chunker struct {
	pending []byte
}

func (c *chunker) push(samples []int16, emit func([]byte)) {
	for _, v := range samples {
		c.pending = binary.LittleEndian.AppendUint16(c.pending, uint16(v))
	}
	for len(c.pending) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, c.pending)
		emit(chunk)
		c.pending = append(c.pending[:0], c.pending[chunkBytes:]...)
	}
}

// dispatchCommand maps a control-channel command onto target.
func dispatchCommand(target Target, cmd string) bool {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "start":
		target.Start()
	case "stop":
		target.Stop()
	case "generate":
		target.Generate()
	case "done_speaking", "done-speaking":
		target.DoneSpeaking()
	default:
		return false
	}
	return true
}

func parseICEServers(raw string) []webrtc.ICEServer {
	fallback := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(raw), &servers); err != nil || len(servers) == 0 {
		log.Printf("ICE_SERVERS_JSON ignored: %v", err)
		return fallback
	}
	return servers
}
