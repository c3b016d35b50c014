package audio

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

// UnknownArtist is recorded when no artist can be resolved.
const UnknownArtist = "Unknown"

type Metadata struct {
	Filename    string
	Title       string
	Artist      string
	Album       string
	DurationSec float64
	SampleRate  int
	Channels    int
	Format      string
}

type ffprobeOutput struct {
	Format struct {
		Filename string            `json:"filename"`
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// ReadTags reads embedded ID3, MP4, FLAC or OGG tags.
func ReadTags(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		Filename: filepath.Base(path),
		Title:    strings.TrimSpace(m.Title()),
		Artist:   strings.TrimSpace(m.Artist()),
		Album:    strings.TrimSpace(m.Album()),
		Format:   string(m.FileType()),
	}, nil
}

func ReadMetadataFFmpeg(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, err
	}

	audioStream := probe.firstAudioStream()
	if audioStream == nil {
		return nil, errors.New("no audio stream found")
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	sampleRate, _ := strconv.Atoi(audioStream.SampleRate)

	meta := &Metadata{
		Filename:    filepath.Base(path),
		DurationSec: duration,
		SampleRate:  sampleRate,
		Channels:    audioStream.Channels,
		Format:      probe.Format.Format,
	}

	// ffprobe reports tag keys in whatever case the container used.
	for k, v := range probe.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			meta.Title = strings.TrimSpace(v)
		case "artist":
			meta.Artist = strings.TrimSpace(v)
		case "album":
			meta.Album = strings.TrimSpace(v)
		}
	}

	return meta, nil
}

// ParseFilename splits "Artist - Title.ext". Without a separator the whole
// base name is the title and the artist is empty.
func ParseFilename(path string) (title, artist string) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if a, t, ok := strings.Cut(base, " - "); ok {
		a, t = strings.TrimSpace(a), strings.TrimSpace(t)
		if a != "" && t != "" {
			return t, a
		}
	}
	return strings.TrimSpace(base), ""
}

// ResolveMetadata picks the catalog name and artist for a file. Explicit
// values win, then embedded tags, then ffprobe, then the filename. A
// missing artist falls back to UnknownArtist.
func ResolveMetadata(ctx context.Context, path, name, artist string) (string, string) {
	fill := func(m *Metadata) {
		if m == nil {
			return
		}
		if name == "" {
			name = m.Title
		}
		if artist == "" {
			artist = m.Artist
		}
	}

	if name == "" || artist == "" {
		if m, err := ReadTags(path); err == nil {
			fill(m)
		}
	}
	if (name == "" || artist == "") && ctx.Err() == nil {
		if _, err := exec.LookPath("ffprobe"); err == nil {
			if m, err := ReadMetadataFFmpeg(ctx, path); err == nil {
				fill(m)
			}
		}
	}
	if name == "" || artist == "" {
		t, a := ParseFilename(path)
		fill(&Metadata{Title: t, Artist: a})
	}
	if artist == "" {
		artist = UnknownArtist
	}
	return name, artist
}
