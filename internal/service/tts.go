// Package service orchestrates synthesis requests: it resolves the model
// through the lifecycle manager, moves reference audio through the codec,
// and encodes waveforms for the transport layer. The HTTP layer consumes
// this package; no wire format lives here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/config"
	"github.com/resona-team/resona/internal/device"
	"github.com/resona-team/resona/internal/engine"
	"github.com/resona-team/resona/internal/model"
)

// Client-side validation errors the transport layer maps to 4xx.
var (
	ErrUnknownVoice      = errors.New("unknown voice")
	ErrEmptyText         = errors.New("text must not be empty")
	ErrReferenceTooShort = errors.New("reference audio too short")
)

// CustomVoiceRequest synthesizes speech with a pre-built voice.
type CustomVoiceRequest struct {
	Text        string
	Voice       string
	Language    string
	Instruction string
	Speed       float64
	Format      audio.Format
}

// VoiceDesignRequest synthesizes speech with a voice described in natural
// language.
type VoiceDesignRequest struct {
	Text             string
	Language         string
	VoiceDescription string
	Speed            float64
	Format           audio.Format
}

// VoiceCloneRequest synthesizes speech by cloning a voice from reference
// audio plus its transcription.
type VoiceCloneRequest struct {
	Text           string
	Language       string
	ReferenceAudio []byte
	ReferenceText  string
	XVectorOnly    bool
	Speed          float64
	Format         audio.Format
}

// Result is the outcome of a synthesis call.
type Result struct {
	RequestID       string
	Audio           *audio.EncodeResult
	DurationSeconds float64
}

// Health is a read-only service health projection.
type Health struct {
	Status               string       `json:"status"`
	LoadedRoles          []model.Role `json:"models_loaded"`
	Device               string       `json:"device"`
	AcceleratorAvailable bool         `json:"accelerator_available"`
	AvailableMemoryGB    float64      `json:"available_memory_gb,omitempty"`
}

// TTS is the synthesis facade exposed to the transport layer.
type TTS struct {
	manager  *model.Manager
	codec    *audio.Codec
	selector *device.Selector
	audioCfg config.AudioConfig
}

// NewTTS creates a TTS service.
func NewTTS(manager *model.Manager, codec *audio.Codec, selector *device.Selector, audioCfg config.AudioConfig) *TTS {
	return &TTS{
		manager:  manager,
		codec:    codec,
		selector: selector,
		audioCfg: audioCfg,
	}
}

// SynthesizeCustomVoice synthesizes speech using a pre-built voice.
func (s *TTS) SynthesizeCustomVoice(ctx context.Context, req *CustomVoiceRequest) (*Result, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	if _, ok := s.manager.Voices()[req.Voice]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, req.Voice)
	}

	return s.synthesize(ctx, model.RoleCustomVoice, &engine.SynthesisRequest{
		Text:        req.Text,
		Language:    req.Language,
		Voice:       req.Voice,
		Instruction: req.Instruction,
		Speed:       req.Speed,
	}, req.Format)
}

// SynthesizeVoiceDesign synthesizes speech with a voice designed from a
// natural-language description.
func (s *TTS) SynthesizeVoiceDesign(ctx context.Context, req *VoiceDesignRequest) (*Result, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	return s.synthesize(ctx, model.RoleVoiceDesign, &engine.SynthesisRequest{
		Text:        req.Text,
		Language:    req.Language,
		Instruction: req.VoiceDescription,
		Speed:       req.Speed,
	}, req.Format)
}

// SynthesizeVoiceClone synthesizes speech by cloning the voice of the
// reference audio. The reference is decoded to mono, resampled to the
// configured conditioning rate, and rejected below the minimum duration
// (1 second hard floor, 3+ seconds recommended).
func (s *TTS) SynthesizeVoiceClone(ctx context.Context, req *VoiceCloneRequest) (*Result, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	ref, err := s.codec.Decode(req.ReferenceAudio, s.audioCfg.TargetSampleRate)
	if err != nil {
		return nil, err
	}

	minSeconds := s.audioCfg.MinCloneSeconds
	if !audio.ValidateMinDuration(ref, minSeconds) {
		return nil, fmt.Errorf("%w: %.2fs given, minimum %.1fs required (3+ seconds recommended)",
			ErrReferenceTooShort, ref.Duration(), minSeconds)
	}

	slog.Info("Reference audio accepted", "duration_seconds", ref.Duration(), "sample_rate", ref.SampleRate)

	return s.synthesize(ctx, model.RoleVoiceClone, &engine.SynthesisRequest{
		Text:           req.Text,
		Language:       req.Language,
		ReferenceAudio: ref,
		ReferenceText:  req.ReferenceText,
		XVectorOnly:    req.XVectorOnly,
		Speed:          req.Speed,
	}, req.Format)
}

func (s *TTS) synthesize(ctx context.Context, role model.Role, req *engine.SynthesisRequest, format audio.Format) (*Result, error) {
	requestID := uuid.NewString()

	handle, err := s.manager.Load(ctx, role, false)
	if err != nil {
		return nil, err
	}

	wave, err := handle.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed for role %s: %w", role, err)
	}

	wave = s.codec.NormalizeLoudness(wave, s.audioCfg.LoudnessDB)

	if format == "" {
		format = audio.Format(s.audioCfg.DefaultFormat)
	}

	encoded, err := s.codec.Encode(wave, format, "")
	if err != nil {
		return nil, err
	}

	if encoded.Format != format {
		slog.Warn("Encoded format deviates from request",
			"request_id", requestID, "requested", format, "produced", encoded.Format)
	}

	slog.Info("Synthesis complete",
		"request_id", requestID, "role", role,
		"duration_seconds", wave.Duration(), "format", encoded.Format)

	return &Result{
		RequestID:       requestID,
		Audio:           encoded,
		DurationSeconds: wave.Duration(),
	}, nil
}

// Voices returns the configured pre-built voice table.
func (s *TTS) Voices() map[string]config.VoiceConfig {
	return s.manager.Voices()
}

// Languages returns the supported language list.
func (s *TTS) Languages() []string {
	return s.manager.Languages()
}

// ModelInfo returns the lifecycle manager snapshot.
func (s *TTS) ModelInfo() model.InfoSnapshot {
	return s.manager.Info()
}

// Health reports service health for status endpoints.
func (s *TTS) Health() Health {
	profile := s.selector.Detect()

	return Health{
		Status:               "healthy",
		LoadedRoles:          s.manager.Info().LoadedRoles,
		Device:               profile.Name,
		AcceleratorAvailable: profile.IsAccelerator(),
		AvailableMemoryGB:    s.selector.AvailableMemoryGB(),
	}
}
