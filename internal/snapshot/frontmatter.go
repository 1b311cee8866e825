package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/rolechain/internal/rolestate"
)

var (
	// ErrMissingFrontMatter indicates the report did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("snapshot: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("snapshot: malformed frontmatter")
	// ErrChecksumMismatch indicates the report body was edited after it was written.
	ErrChecksumMismatch = errors.New("snapshot: report checksum mismatch")
)

// ReportMeta is the machine-readable header written above the Markdown report.
type ReportMeta struct {
	Version     int
	GeneratedAt time.Time
	Roles       int
	Completed   int
	Failed      int
	SkipMarked  int
	Checksum    string
}

// MetaFor summarizes s for a report whose rendered body is body.
func MetaFor(s Snapshot, body []byte) ReportMeta {
	return ReportMeta{
		Version:     s.Version,
		GeneratedAt: s.GeneratedAt,
		Roles:       len(s.Roles),
		Completed:   s.Count(rolestate.StatusCompleted),
		Failed:      s.Count(rolestate.StatusFailed),
		SkipMarked:  len(s.SkipMarkers),
		Checksum:    checksum(body),
	}
}

// Verify reports whether body still matches the recorded checksum.
func (m ReportMeta) Verify(body []byte) error {
	if m.Checksum != checksum(body) {
		return ErrChecksumMismatch
	}
	return nil
}

type reportEnvelope struct {
	Rolechain reportMetadata `yaml:"rolechain"`
}

type reportMetadata struct {
	Version    int    `yaml:"version"`
	Generated  string `yaml:"generated"`
	Roles      int    `yaml:"roles"`
	Completed  int    `yaml:"completed"`
	Failed     int    `yaml:"failed"`
	SkipMarked int    `yaml:"skip_marked"`
	Checksum   string `yaml:"checksum"`
}

// RenderReport renders the Markdown report for s with its metadata header.
func RenderReport(s Snapshot, window int) ([]byte, error) {
	body := []byte(RenderMarkdown(s, window))
	return WriteFrontMatter(MetaFor(s, body), body)
}

// WriteFrontMatter renders meta and body with YAML fences.
func WriteFrontMatter(meta ReportMeta, body []byte) ([]byte, error) {
	envelope := reportEnvelope{Rolechain: reportMetadata{
		Version:    meta.Version,
		Generated:  meta.GeneratedAt.UTC().Format(time.RFC3339),
		Roles:      meta.Roles,
		Completed:  meta.Completed,
		Failed:     meta.Failed,
		SkipMarked: meta.SkipMarked,
		Checksum:   meta.Checksum,
	}}
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// ParseFrontMatter splits a rendered report into its metadata and body.
func ParseFrontMatter(content []byte) (ReportMeta, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return ReportMeta{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return ReportMeta{}, nil, ErrMalformedFrontMatter
	}
	var envelope reportEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return ReportMeta{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	raw := envelope.Rolechain
	if raw.Version == 0 || strings.TrimSpace(raw.Checksum) == "" {
		return ReportMeta{}, nil, ErrMalformedFrontMatter
	}
	generated, err := time.Parse(time.RFC3339, raw.Generated)
	if err != nil {
		return ReportMeta{}, nil, fmt.Errorf("%w: generated: %v", ErrMalformedFrontMatter, err)
	}
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	return ReportMeta{
		Version:     raw.Version,
		GeneratedAt: generated.UTC(),
		Roles:       raw.Roles,
		Completed:   raw.Completed,
		Failed:      raw.Failed,
		SkipMarked:  raw.SkipMarked,
		Checksum:    raw.Checksum,
	}, body, nil
}

// ReadReport loads a report file and checks its body against the checksum.
func ReadReport(path string) (ReportMeta, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReportMeta{}, nil, err
	}
	meta, body, err := ParseFrontMatter(data)
	if err != nil {
		return ReportMeta{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := meta.Verify(body); err != nil {
		return meta, body, fmt.Errorf("%s: %w", path, err)
	}
	return meta, body, nil
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
