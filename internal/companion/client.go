// Package companion talks to the generative model and composes chat replies.
package companion

import (
	"context"
	"errors"
)

var (
	ErrEmptyInput       = errors.New("nothing to reply to: send text or audio")
	ErrAudioUnsupported = errors.New("audio input is not supported by this model backend")
	ErrMoodRequired     = errors.New("mood is required")
)

// Client is the generative backend.
type Client interface {
	Reply(ctx context.Context, p Prompt) (string, error)
	ReflectMood(ctx context.Context, line string) (string, error)
	Affirmation(ctx context.Context, hint string) (string, error)
	ClassifyCrisis(ctx context.Context, text string) (Crisis, error)
	SummarizeAudio(ctx context.Context, data []byte, mimeType string) (string, error)
	Close()
}
