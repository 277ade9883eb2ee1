// Package speech speaks text through an external text-to-speech command.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/output"
)

// Baselines for espeak-style commands: words per minute and the 0..99 pitch scale.
const (
	baseWordsPerMinute = 175
	basePitch          = 50
	maxPitch           = 99
)

// ExecSynthesizer runs one command per utterance. Argv may reference
// `{voice}`, `{speed}`, `{pitch}`, and `{text}`; without `{text}` the text is
// written to stdin.
type ExecSynthesizer struct {
	argv   []string
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecSynthesizer builds a synthesizer from a parsed command.
func NewExecSynthesizer(cmd config.CommandConfig, logger *slog.Logger) (*ExecSynthesizer, error) {
	if len(cmd.Argv) == 0 {
		return nil, errors.New("speech command is empty")
	}
	return &ExecSynthesizer{argv: append([]string(nil), cmd.Argv...), logger: logger}, nil
}

// Speak blocks until the command exits, ctx ends, or Stop kills it.
func (s *ExecSynthesizer) Speak(ctx context.Context, text string, voice output.Voice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	argv := config.ExpandArgv(s.argv, placeholders(text, voice))
	useStdin := !config.HasPlaceholder(s.argv, "text")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if useStdin {
		cmd.Stdin = strings.NewReader(text)
	}

	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	if s.logger != nil {
		s.logger.Debug("utterance complete", "chars", len(text), "voice", voice.Name)
	}
	return nil
}

// Stop kills the running utterance, if any.
func (s *ExecSynthesizer) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func placeholders(text string, voice output.Voice) map[string]string {
	return map[string]string{
		"voice": voice.Name,
		"speed": strconv.Itoa(wordsPerMinute(voice.Rate)),
		"pitch": strconv.Itoa(pitchValue(voice.Pitch)),
		"rate":  strconv.FormatFloat(voice.Rate, 'f', 2, 64),
		"text":  text,
	}
}

func wordsPerMinute(rate float64) int {
	if rate <= 0 {
		rate = 1
	}
	return int(math.Round(baseWordsPerMinute * rate))
}

func pitchValue(pitch float64) int {
	if pitch <= 0 {
		pitch = 1
	}
	v := int(math.Round(basePitch * pitch))
	if v > maxPitch {
		return maxPitch
	}
	return v
}
