package model

import (
	"encoding/json"
	"fmt"
)

// Verdict is the classification returned by the inference service.
type Verdict int

const (
	Gray Verdict = iota
	Green
	Yellow
	Red
)

// Neutral is published whenever no verdict is known.
const Neutral = Gray

func (v Verdict) String() string {
	switch v {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case Red:
		return "RED"
	default:
		return "GRAY"
	}
}

// ParseVerdict maps the wire name to a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "GREEN":
		return Green, nil
	case "YELLOW":
		return Yellow, nil
	case "RED":
		return Red, nil
	case "GRAY":
		return Gray, nil
	}
	return Gray, fmt.Errorf("unknown verdict %q", s)
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("verdict: %w", err)
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// DebugInfo carries the per-modality scores behind a verdict.
type DebugInfo struct {
	FacialEmotions map[string]float64 `json:"facial_emotions,omitempty"`
	FacialDominant string             `json:"facial_dominant,omitempty"`
	SpeechEmotions map[string]float64 `json:"speech_emotions,omitempty"`
	SpeechDominant string             `json:"speech_dominant,omitempty"`
	FusedScore     float64            `json:"fused_score"`
}

// InferenceResult is one parsed analyze response.
type InferenceResult struct {
	Verdict Verdict    `json:"verdict"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

// SessionState is the state of the polling session.
type SessionState int

const (
	Idle SessionState = iota
	Active
)

func (s SessionState) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "IDLE"
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// AudioFormat is the fixed sampling contract shared by capture and encoding.
type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultAudioFormat is 16 kHz mono 16-bit PCM.
var DefaultAudioFormat = AudioFormat{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BlockAlign is the size in bytes of one frame across all channels.
func (f AudioFormat) BlockAlign() int {
	return f.Channels * (f.BitDepth / 8)
}

// ByteRate is the number of bytes produced per second.
func (f AudioFormat) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}
