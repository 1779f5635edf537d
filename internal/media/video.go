package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type ffmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string

	mu    sync.Mutex
	infos map[string]probeEntry
}

// probeEntry remembers the file state a probe was taken from, so a file
// replaced under the same name is probed again.
type probeEntry struct {
	size    int64
	modTime time.Time
	info    *VideoInfo
}

func (e probeEntry) matches(fi os.FileInfo) bool {
	return e.size == fi.Size() && e.modTime.Equal(fi.ModTime())
}

// NewFFmpegDecoder reads video metadata with ffprobe and single frames with ffmpeg.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) VideoDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &ffmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		infos:       make(map[string]probeEntry),
	}
}

type probeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Duration      string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (d *ffmpegDecoder) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "stat %s: %v", path, err)
	}
	d.mu.Lock()
	if e, ok := d.infos[path]; ok && e.matches(fi) {
		d.mu.Unlock()
		return e.info, nil
	}
	d.mu.Unlock()

	cmd := exec.CommandContext(ctx, d.ffprobePath, "-v", "error", "-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,nb_read_packets,duration:format=duration",
		"-of", "json", path)
	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ffprobe %s: %v", path, err)
	}
	info, err := parseProbe(output)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ffprobe %s: %v", path, err)
	}

	d.mu.Lock()
	d.infos[path] = probeEntry{size: fi.Size(), modTime: fi.ModTime(), info: info}
	d.mu.Unlock()
	return info, nil
}

func parseProbe(output []byte) (*VideoInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, errors.Wrap(err, "unexpected ffprobe output")
	}
	if len(probe.Streams) == 0 {
		return nil, errors.New("no video stream")
	}
	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, errors.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	duration, _ := strconv.ParseFloat(s.Duration, 64)
	if duration <= 0 {
		duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	total, _ := strconv.Atoi(s.NbFrames)
	if total <= 0 {
		total, _ = strconv.Atoi(s.NbReadPackets)
	}
	if total <= 0 && fps > 0 {
		total = int(duration * fps)
	}
	if total <= 0 {
		return nil, errors.New("could not determine frame count")
	}

	return &VideoInfo{
		Width:       s.Width,
		Height:      s.Height,
		FPS:         fps,
		TotalFrames: total,
		Duration:    duration,
	}, nil
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

func (d *ffmpegDecoder) ReadFrame(ctx context.Context, path string, index int) (*Image, error) {
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= info.TotalFrames {
		return nil, errors.Wrapf(ErrDecode, "frame %d out of range", index)
	}
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	offset := float64(index) / fps

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 6, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(ErrDecode, "ffmpeg frame %d: %v: %s", index, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.Wrapf(ErrDecode, "ffmpeg returned no data for frame %d", index)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "frame %d: %v", index, err)
	}
	return &Image{
		Path:   fmt.Sprintf("frame_%d", index),
		Data:   stdout.Bytes(),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
