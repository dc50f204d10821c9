package pipeline

import (
	"context"
	"fmt"
	"math"

	"narrato-backend/internal/media"
)

// reconcile concatenates the clips and stretches the result to cover the
// audio duration. The concatenated duration is measured, never assumed from
// the nominal clip length.
func (p *Pipeline) reconcile(ctx context.Context, ws *media.Workspace, clipPaths []string, audioDuration float64) (string, error) {
	concatenated, err := p.assembler.Concat(ctx, ws, clipPaths, "silent_concat.mp4")
	if err != nil {
		return "", err
	}

	measured, err := p.assembler.ProbeDuration(ctx, concatenated)
	if err != nil {
		return "", err
	}
	if measured <= 0 {
		return "", fmt.Errorf("concatenated silent video has non-positive duration %.3f", measured)
	}

	target := targetDuration(audioDuration)
	if target <= measured {
		return concatenated, nil
	}

	// Repeat the already-concatenated video enough times to cover the
	// target, then trim with a hard duration cap on the encode.
	repeat := repeatCount(target, measured)
	return p.assembler.RepeatTrimmed(ctx, ws, concatenated, repeat, target, "silent_reconciled.mp4")
}

// targetDuration is the audio duration ceiling-rounded to whole seconds.
func targetDuration(audioDuration float64) float64 {
	return math.Ceil(audioDuration)
}

func repeatCount(target, measured float64) int {
	return int(math.Ceil(target / measured))
}
