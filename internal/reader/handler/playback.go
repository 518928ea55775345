package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/speech/engine"
	"github.com/readaloud/readaloud/pkg/events"
	"github.com/readaloud/readaloud/pkg/voices"
)

// ServiceName is the fully-qualified name of the playback RPC service.
const ServiceName = "readaloud.playback.v1.PlaybackService"

// Procedure paths.
const (
	SpeakProcedure         = "/" + ServiceName + "/Speak"
	RestartProcedure       = "/" + ServiceName + "/Restart"
	PauseProcedure         = "/" + ServiceName + "/Pause"
	ResumeProcedure        = "/" + ServiceName + "/Resume"
	StopProcedure          = "/" + ServiceName + "/Stop"
	StatusProcedure        = "/" + ServiceName + "/Status"
	SetVisibilityProcedure = "/" + ServiceName + "/SetVisibility"
	WatchStatusProcedure   = "/" + ServiceName + "/WatchStatus"
	WatchEventsProcedure   = "/" + ServiceName + "/WatchEvents"
)

// Player is the playback surface the handler drives.
type Player interface {
	SetVoice(voice string)
	Speak(ctx context.Context) error
	Restart(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
	SetVisible(visible bool)
	Snapshot() playback.Snapshot
	Subscribe() (<-chan playback.Snapshot, func())
}

// VoiceResolver validates a requested voice against the catalog.
type VoiceResolver interface {
	Resolve(backend, voice string) (string, error)
}

// EventSource fans playback and download events out to local subscribers.
type EventSource interface {
	Subscribe(id string, bufSize int) <-chan events.Envelope
	Unsubscribe(id string)
}

// PlaybackHandler serves the playback RPC service.
type PlaybackHandler struct {
	player  Player
	voices  VoiceResolver
	backend string
	events  EventSource
}

// NewPlaybackHandler creates a playback handler. voices may be nil, in which
// case any voice name is passed through.
func NewPlaybackHandler(player Player, voices VoiceResolver, backend string) *PlaybackHandler {
	return &PlaybackHandler{player: player, voices: voices, backend: backend}
}

// WithEvents enables the WatchEvents stream.
func (h *PlaybackHandler) WithEvents(src EventSource) *PlaybackHandler {
	h.events = src
	return h
}

// Routes returns the mount path and handler for every playback procedure.
func (h *PlaybackHandler) Routes(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(SpeakProcedure, connect.NewUnaryHandler(SpeakProcedure, h.Speak, opts...))
	mux.Handle(RestartProcedure, connect.NewUnaryHandler(RestartProcedure, h.Restart, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, h.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, h.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, h.Stop, opts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, h.Status, opts...))
	mux.Handle(SetVisibilityProcedure, connect.NewUnaryHandler(SetVisibilityProcedure, h.SetVisibility, opts...))
	mux.Handle(WatchStatusProcedure, connect.NewServerStreamHandler(WatchStatusProcedure, h.WatchStatus, opts...))
	if h.events != nil {
		mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, h.WatchEvents, opts...))
	}
	return "/" + ServiceName + "/", mux
}

// Speak starts reading the document. An optional voice replaces the
// current one.
func (h *PlaybackHandler) Speak(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	if err := h.applyVoice(req.Msg.GetValue()); err != nil {
		return nil, err
	}
	return h.respond(ctx, "speak", h.player.Speak(ctx))
}

// Restart reads the document again from the first chunk.
func (h *PlaybackHandler) Restart(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	if err := h.applyVoice(req.Msg.GetValue()); err != nil {
		return nil, err
	}
	return h.respond(ctx, "restart", h.player.Restart(ctx))
}

func (h *PlaybackHandler) Pause(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return h.respond(ctx, "pause", h.player.Pause())
}

func (h *PlaybackHandler) Resume(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return h.respond(ctx, "resume", h.player.Resume())
}

func (h *PlaybackHandler) Stop(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return h.respond(ctx, "stop", h.player.Stop())
}

func (h *PlaybackHandler) Status(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return h.respond(ctx, "status", nil)
}

// SetVisibility reports whether the document view is on screen.
func (h *PlaybackHandler) SetVisibility(ctx context.Context, req *connect.Request[wrapperspb.BoolValue]) (*connect.Response[structpb.Struct], error) {
	h.player.SetVisible(req.Msg.GetValue())
	return h.respond(ctx, "set visibility", nil)
}

// WatchStatus streams a snapshot after every status change until the
// client disconnects or the player shuts down.
func (h *PlaybackHandler) WatchStatus(ctx context.Context, _ *connect.Request[emptypb.Empty], stream *connect.ServerStream[structpb.Struct]) error {
	updates, unsubscribe := h.player.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := snapshotStruct(snap)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// WatchEvents streams every emitted event envelope until the client
// disconnects. A slow client loses events rather than stalling emitters.
func (h *PlaybackHandler) WatchEvents(ctx context.Context, _ *connect.Request[emptypb.Empty], stream *connect.ServerStream[structpb.Struct]) error {
	id := xid.New().String()
	envs := h.events.Subscribe(id, 64)
	defer h.events.Unsubscribe(id)

	slog.DebugContext(ctx, "event stream opened", slog.String("subscriber", id))
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-envs:
			if !ok {
				return nil
			}
			msg, err := toStruct(env)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (h *PlaybackHandler) applyVoice(voice string) error {
	if voice == "" {
		return nil
	}
	if h.voices != nil {
		resolved, err := h.voices.Resolve(h.backend, voice)
		if err != nil {
			return toConnectError(err)
		}
		voice = resolved
	}
	h.player.SetVoice(voice)
	return nil
}

// respond maps err onto a Connect error, or returns the current snapshot.
// Synthesis and device failures are already reflected in the snapshot, so
// they do not fail the call.
func (h *PlaybackHandler) respond(ctx context.Context, op string, err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		var (
			te *playback.TransitionError
			de *playback.PlaybackDeviceError
		)
		switch {
		case errors.As(err, &te):
			return nil, toConnectError(err)
		case errors.Is(err, playback.ErrClosed):
			return nil, toConnectError(err)
		case errors.As(err, &de), isSynthesisError(err):
			util.Log(ctx).WithError(err).Info("playback " + op + " reported failure in status")
		default:
			util.Log(ctx).WithError(err).Error("playback " + op)
			return nil, toConnectError(err)
		}
	}

	msg, err := snapshotStruct(h.player.Snapshot())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) *connect.Error {
	var te *playback.TransitionError
	switch {
	case errors.As(err, &te):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, voices.ErrUnknownVoice):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func snapshotStruct(snap playback.Snapshot) (*structpb.Struct, error) {
	return toStruct(snap)
}

// toStruct converts v into a protobuf Struct using its JSON field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", v, err)
	}
	return structpb.NewStruct(fields)
}

func isSynthesisError(err error) bool {
	var te *engine.TTSError
	return errors.As(err, &te)
}
