package buildpipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"bridgegen/internal/project"
)

// ArtifactKind names one generated output.
type ArtifactKind string

const (
	ArtifactNative       ArtifactKind = "native"
	ArtifactInterface    ArtifactKind = "interface"
	ArtifactFfigenConfig ArtifactKind = "ffigen_config"
	ArtifactManaged      ArtifactKind = "managed"
	ArtifactHeader       ArtifactKind = "header"
	ArtifactHIR          ArtifactKind = "hir"
	ArtifactMIR          ArtifactKind = "mir"
)

// Artifact is a generated file. Written is false when the file on disk
// already had identical content, or when the run was a dry run.
type Artifact struct {
	Kind    ArtifactKind
	Path    string
	Data    []byte
	Written bool
}

// WriteArtifacts writes every artifact whose content differs from the file
// on disk, creating parent directories as needed. It stops at the first
// failure.
func WriteArtifacts(artifacts []Artifact) error {
	for i := range artifacts {
		a := &artifacts[i]
		written, err := writeIfChanged(a.Path, a.Data)
		if err != nil {
			return fmt.Errorf("write %s artifact: %w", a.Kind, err)
		}
		a.Written = written
	}
	return nil
}

func writeIfChanged(path string, data []byte) (bool, error) {
	current, ok, err := project.DigestFile(path)
	if err != nil {
		return false, err
	}
	if ok && current == project.DigestBytes(data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, fmt.Errorf("failed to create output dir: %w", err)
	}
	// #nosec G306 -- generated sources are meant to be read by other tools
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
