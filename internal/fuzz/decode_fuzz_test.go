package fuzztests

import (
	"context"
	"testing"
	"time"

	"bridgegen/internal/codegen"
	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/raw"
)

// stageTimeout bounds one decode-resolve-lower-generate pass. Taking longer
// points at a resolution loop.
const stageTimeout = 5 * time.Second

func FuzzDecodeAndLower(f *testing.F) {
	addDumpSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		input = clip(input)
		file, err := raw.DecodeBytes(input)
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			pack := raw.NewPack()
			pack.Add(file)
			cfg := hir.Config{Primary: []string{file.Crate}, BridgeModules: []string{file.Crate + "::api"}}
			hp, err := hir.Build(ctx, cfg, pack)
			if err != nil {
				return
			}
			doc, err := mir.Lower(hp, mir.Options{})
			if err != nil {
				return
			}
			_, _ = codegen.Generate(doc, codegen.Options{})
		}()

		select {
		case <-done:
		case <-ctx.Done():
			t.Fatalf("pipeline hang detected after %v\ninput (%d bytes): %q", stageTimeout, len(input), truncateForLog(input, 200))
		}
	})
}

func truncateForLog(input []byte, maxLen int) []byte {
	if len(input) <= maxLen {
		return input
	}
	return append(input[:maxLen:maxLen], "..."...)
}
