package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

var schemes = []string{"stun:", "stuns:", "turn:", "turns:"}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{defaultSTUN},
			},
		},
	}
}

// ICEConfig builds the configuration browsers use for their peer connections.
// Media flows peer to peer; the server only hands out these servers.
func ICEConfig(urls []string) (webrtc.Configuration, error) {
	if len(urls) == 0 {
		return DefaultWebRTCConfig(), nil
	}
	cfg := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(urls))}
	for _, u := range urls {
		if !validScheme(u) {
			return webrtc.Configuration{}, fmt.Errorf("ice server %q: unsupported scheme", u)
		}
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{URLs: []string{u}})
	}
	return cfg, nil
}

func validScheme(u string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(u, s) && len(u) > len(s) {
			return true
		}
	}
	return false
}

// ClientConfig is the JSON shape RTCPeerConnection accepts.
type ClientConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func ToClient(cfg webrtc.Configuration) ClientConfig {
	return ClientConfig{ICEServers: cfg.ICEServers}
}
