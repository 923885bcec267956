// Package telemetry carries link events out of the core to logs and
// live viewers. Events are emitted from worker goroutines only.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

type Kind string

const (
	FrameReceived Kind = "frame_received"
	FrameBad      Kind = "frame_bad"
	FrameSent     Kind = "frame_sent"
	AckSent       Kind = "ack_sent"
	AckReceived   Kind = "ack_received"
	Delivered     Kind = "delivered"
	Collision     Kind = "collision"
	Timeout       Kind = "timeout"
	LinkDead      Kind = "link_dead"
	SynSent       Kind = "syn_sent"
	SynReceived   Kind = "syn_received"
)

type Event struct {
	Time    time.Time `json:"time"`
	Station int       `json:"station"`
	Kind    Kind      `json:"kind"`
	Peer    int       `json:"peer"`
	Seq     int       `json:"seq"`
	Ack     int       `json:"ack"`
	Bits    int       `json:"bits,omitempty"`
	Count   uint64    `json:"count,omitempty"`
}

type Sink interface {
	Emit(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink writes events through slog. Frame level events are logged at
// debug, link failures at warn.
type LogSink struct {
	Log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	if log == nil {
		log = slog.Default()
	}
	return LogSink{Log: log.With("layer", "telemetry")}
}

func (s LogSink) Emit(e Event) {
	level := slog.LevelDebug
	switch e.Kind {
	case LinkDead, Collision, Timeout:
		level = slog.LevelWarn
	case Delivered, SynReceived, SynSent:
		level = slog.LevelInfo
	}
	s.Log.Log(context.Background(), level, string(e.Kind),
		"station", e.Station, "peer", e.Peer, "seq", e.Seq, "ack", e.Ack, "bits", e.Bits, "count", e.Count)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
