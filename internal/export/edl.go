// Package export renders a project's timeline into interchange
// formats. Only CMX3600-style EDL is implemented; real encoding is out
// of scope for the agent.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/project"
	"github.com/clipforge/clipforge-agent/internal/timecode"
)

// GenerateEDL flattens the project's video tracks, in track order, into
// one EDL event list. Record times are the clips' timeline placement.
// Clips whose media descriptor is missing are listed as unresolved and
// skipped.
func GenerateEDL(p *project.Project) (string, []string) {
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}

	lines := []string{
		fmt.Sprintf("TITLE: %s", p.Name),
		"FCM: NON-DROP FRAME",
		"",
	}

	var unresolved []string
	event := 0
	for _, track := range p.Tracks {
		if track.Kind != project.TrackKindVideo {
			continue
		}
		for _, clip := range track.Clips {
			m := p.MediaByID(clip.MediaID)
			if m == nil {
				unresolved = append(unresolved, clip.ID)
				continue
			}
			event++

			srcIn := timecode.Format(clip.SourceStart, fps)
			srcOut := timecode.Format(clip.SourceEnd, fps)
			recIn := timecode.Format(clip.StartTime, fps)
			recOut := timecode.Format(clip.EndTime, fps)

			name := clip.Name
			if name == "" {
				name = m.Name
			}

			lines = append(lines,
				fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, "AX", "V", srcIn, srcOut, recIn, recOut),
				fmt.Sprintf("* FROM CLIP NAME:  %s", name),
				fmt.Sprintf("* SOURCE FILE:  %s", m.URI),
			)
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n"), unresolved
}

// WriteEDL generates the EDL and writes it under the output directory
// as <sanitized project name>.edl. The directory must already exist.
func WriteEDL(p *project.Project, outputDir string) (string, int, []string, error) {
	if err := ValidateOutputDir(outputDir); err != nil {
		return "", 0, nil, err
	}

	content, unresolved := GenerateEDL(p)

	name := SanitizeName(p.Name, 64)
	if name == "" {
		name = "untitled"
	}
	path := filepath.Join(outputDir, name+".edl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", 0, nil, fmt.Errorf("write edl: %w", err)
	}

	clipCount := strings.Count(content, "* FROM CLIP NAME:")
	return path, clipCount, unresolved, nil
}
