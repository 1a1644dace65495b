// package formatter renders playlist availability reports and job status to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/jellysync/internal/models"
)

// Report is a playlist with its tracks in membership order.
type Report struct {
	Playlist *models.Playlist
	Tracks   []models.PlaylistTrack
}

// Format names an output format accepted by [Write].
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "text"
)

// ParseFormat accepts "csv", "md"/"markdown" and "text"/"txt".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "", "text", "txt":
		return Text, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Percent returns the available share of a playlist, 0 for an empty one.
func Percent(p *models.Playlist) float64 {
	if p.TrackCount == 0 {
		return 0
	}
	return float64(p.TracksAvailable) / float64(p.TrackCount) * 100
}

func timestamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func trackState(t *models.Track) string {
	switch {
	case t.Available():
		return "available"
	case t.Downloaded:
		return "downloaded"
	case t.DownloadStatus != "":
		return "failed"
	default:
		return "missing"
	}
}

// ReportsToCSV writes one row per playlist with columns: ID, Name, Provider, Available, Total, Percent, Last Checked, Last Changed
func ReportsToCSV(reports []Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Provider", "Available", "Total", "Percent", "Last Checked", "Last Changed"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range reports {
		p := r.Playlist
		record := []string{
			p.ID,
			p.Name,
			p.Provider,
			strconv.Itoa(p.TracksAvailable),
			strconv.Itoa(p.TrackCount),
			strconv.FormatFloat(Percent(p), 'f', 1, 64),
			timestamp(p.LastCheckedAt),
			timestamp(p.LastChangedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown renders one playlist with its track states and failure details
func ReportToMarkdown(r Report) ([]byte, error) {
	var buf bytes.Buffer
	p := r.Playlist

	buf.WriteString(fmt.Sprintf("# %s\n\n", p.Name))

	if p.CoverImageURL != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", p.CoverImageURL))
	}

	if p.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", p.Description))
	}

	buf.WriteString(fmt.Sprintf("**Available**: %d/%d (%.1f%%)\n", p.TracksAvailable, p.TrackCount, Percent(p)))
	buf.WriteString(fmt.Sprintf("**Provider**: %s\n", p.Provider))
	buf.WriteString(fmt.Sprintf("**Last checked**: %s\n\n", timestamp(p.LastCheckedAt)))

	buf.WriteString("## Tracks\n\n")
	for i, pt := range r.Tracks {
		mark := "✗"
		if pt.Track.Available() {
			mark = "✓"
		}
		line := fmt.Sprintf("%d. %s %s [%s]", i+1, mark, pt.Track.Name, trackState(pt.Track))
		if pt.Track.DownloadStatus != "" {
			line += fmt.Sprintf(" (%s)", firstLine(pt.Track.DownloadStatus))
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ReportsToText renders an aligned availability table
func ReportsToText(reports []Report) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "PLAYLIST\tPROVIDER\tAVAILABLE\tLAST CHECKED")
	for _, r := range reports {
		p := r.Playlist
		fmt.Fprintf(tw, "%s\t%s\t%d/%d (%.0f%%)\t%s\n", p.Name, p.Provider, p.TracksAvailable, p.TrackCount, Percent(p), timestamp(p.LastCheckedAt))
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	return buf.Bytes(), nil
}

// MissingToText lists the tracks of a playlist that are not yet playable from the media server
func MissingToText(r Report) []byte {
	var buf bytes.Buffer
	for _, pt := range r.Tracks {
		if pt.Track.Available() {
			continue
		}
		buf.WriteString(fmt.Sprintf("%s [%s]", pt.Track.Name, trackState(pt.Track)))
		if pt.Track.DownloadStatus != "" {
			buf.WriteString(": " + firstLine(pt.Track.DownloadStatus))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// StatusToText renders job statuses as an aligned table
func StatusToText(statuses []*models.JobStatus) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "JOB\tSTATE\tPROGRESS\tFAILED\tUPDATED")
	for _, st := range statuses {
		progress := "-"
		if st.State != models.JobIdle {
			progress = fmt.Sprintf("%d/%d (%.0f%%)", st.Processed, st.Total, st.Percent)
		}
		updated := "-"
		if !st.UpdatedAt.IsZero() && st.State != models.JobIdle {
			updated = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", st.Name, st.State, progress, st.Failed, updated)
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	return buf.Bytes(), nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// Write renders reports in format to path and returns the files created.
//
// CSV and text write a single file at path. Markdown treats path as a directory and writes one
// {playlist-id}.md per playlist.
func Write(reports []Report, format Format, path string) ([]string, error) {
	switch format {
	case CSV:
		data, err := ReportsToCSV(reports)
		if err != nil {
			return nil, fmt.Errorf("failed to generate CSV: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write CSV file: %w", err)
		}
		return []string{path}, nil
	case Markdown:
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		files := make([]string, 0, len(reports))
		for _, r := range reports {
			data, err := ReportToMarkdown(r)
			if err != nil {
				return nil, fmt.Errorf("failed to generate Markdown: %w", err)
			}
			file := filepath.Join(path, r.Playlist.ID+".md")
			if err := os.WriteFile(file, data, 0644); err != nil {
				return nil, fmt.Errorf("failed to write Markdown file: %w", err)
			}
			files = append(files, file)
		}
		return files, nil
	default:
		data, err := ReportsToText(reports)
		if err != nil {
			return nil, fmt.Errorf("failed to generate text: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write text file: %w", err)
		}
		return []string{path}, nil
	}
}
