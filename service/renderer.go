package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"archflow/model"
)

// Renderer invokes the external PlantUML tool to turn diagram text into a
// PNG. Rendering is best effort: any failure leaves the diagram row valid
// with no image attached.
type Renderer struct {
	Bin         string
	OutputDir   string
	ExecTimeout time.Duration
}

func NewRenderer(bin, outputDir string) *Renderer {
	return &Renderer{Bin: bin, OutputDir: outputDir, ExecTimeout: 30 * time.Second}
}

// RenderPNG writes the PlantUML source to a temp file, runs the renderer
// and moves the image into the storage directory, then attaches the path
// to the diagram row. Intended to run in a goroutine after the diagram is
// committed.
func (r *Renderer) RenderPNG(ctx context.Context, diagramId uint, plantuml string) {
	path, err := r.render(ctx, diagramId, plantuml)
	if err != nil {
		logger.Warnf("[renderer] rendering diagram %d failed: %s", diagramId, err)
		return
	}
	if err := model.UpdateDiagramPNG(diagramId, path); err != nil {
		logger.Warnf("[renderer] attaching png to diagram %d failed: %s", diagramId, err)
	}
}

func (r *Renderer) render(ctx context.Context, diagramId uint, plantuml string) (string, error) {
	if err := os.MkdirAll(r.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	tmp, err := os.CreateTemp("", "diagram-*.puml")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(plantuml); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(ctx, r.ExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Bin, "-tpng", tmpPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("plantuml failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	// plantuml writes the png next to the source file
	rendered := strings.TrimSuffix(tmpPath, ".puml") + ".png"
	if _, err := os.Stat(rendered); err != nil {
		return "", fmt.Errorf("rendered image missing: %w", err)
	}

	filename := fmt.Sprintf("diagram_%d_%s.png", diagramId, uuid.New().String())
	target := filepath.Join(r.OutputDir, filename)
	if err := os.Rename(rendered, target); err != nil {
		// temp dir may be on another filesystem
		data, readErr := os.ReadFile(rendered)
		if readErr != nil {
			return "", fmt.Errorf("failed to move rendered image: %w", err)
		}
		if writeErr := os.WriteFile(target, data, 0644); writeErr != nil {
			return "", fmt.Errorf("failed to copy rendered image: %w", writeErr)
		}
		os.Remove(rendered)
	}

	return "/diagrams/" + filename, nil
}

// CleanupArtifacts deletes rendered images older than the retention period.
// The diagram rows keep their text either way.
func (r *Renderer) CleanupArtifacts(retention time.Duration) error {
	entries, err := os.ReadDir(r.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read output dir: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(r.OutputDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.Infof("[renderer] cleanup removed %d stale artifacts", removed)
	}
	return nil
}
