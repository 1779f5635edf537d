package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	"github.com/amankumarsingh77/mhr-streamer/internal/framestream"
	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
)

const barTemplate = `{{ string . "prefix" }} {{ bar . }} {{ percent . }} {{ etime . "%s elapsed" }} {{ string . "eta" }}`

func main() {
	configFile := flag.String("config", "config.yml", "config file path")
	output := flag.String("output", "", "artifact directory, overrides worker.OutputDir")
	frameSkip := flag.Int("frame-skip", 0, "frames to skip between processed frames")
	startFrame := flag.Int("start", 0, "first video frame")
	endFrame := flag.Int("end", -1, "video frame to stop before, -1 for the end")
	exportDir := flag.String("export-obj", "", "write an OBJ per person and frame into this directory")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <image-or-video>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg := loadConfig(*configFile)
	if *output != "" {
		cfg.Worker.OutputDir = *output
	}
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, input, *frameSkip, *startFrame, *endFrame, *exportDir, appLogger); err != nil {
		appLogger.Errorf("processing %s failed: %v", input, err)
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	v, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("loadConfig: %v, using defaults", err)
		return config.Default()
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	return cfg
}

func run(ctx context.Context, cfg *config.Config, input string, skip, start, end int, exportDir string, log logger.Logger) error {
	if _, err := os.Stat(input); err != nil {
		return errors.Wrap(err, "input")
	}
	estimators := estimator.NewLazy(estimator.SubprocessLoader(estimator.NewConfig(cfg.Estimator), log))
	defer estimators.Close()

	bar := &progressBar{}
	orchestrator := worker.NewOrchestrator(
		artifact.NewStore(cfg.Worker.OutputDir),
		estimators,
		media.NewImageDecoder(),
		media.NewFFmpegDecoder(cfg.Media.FFmpegPath, cfg.Media.FFprobePath),
		bar,
		log,
	)

	job := models.NewJob(filepath.Base(input), input, skip, start, end)
	if err := orchestrator.Run(ctx, job); err != nil {
		return err
	}
	log.Infof("job %s done: %s", job.JobID, job.ResultPath)

	if exportDir == "" {
		return nil
	}
	files, err := exportOBJ(framestream.NewService(orchestrator), exportDir)
	if err != nil {
		return err
	}
	log.Infof("exported %d OBJ file(s) to %s", files, exportDir)
	return nil
}

// progressBar renders the job status on the terminal.
type progressBar struct {
	bar *pb.ProgressBar
}

func (p *progressBar) JobStarted(ctx context.Context, job *models.Job) {
	p.bar = pb.ProgressBarTemplate(barTemplate).Start(100)
	p.bar.Set("prefix", job.FileName)
}

func (p *progressBar) StatusChanged(ctx context.Context, status models.ProcessingStatus) {
	if p.bar == nil {
		return
	}
	p.bar.SetCurrent(int64(status.Progress))
	if status.ETA != "" {
		p.bar.Set("eta", "eta "+status.ETA)
	}
}

func (p *progressBar) JobFinished(ctx context.Context, job *models.Job, status models.ProcessingStatus) {
	if p.bar == nil {
		return
	}
	if status.Error == nil {
		p.bar.SetCurrent(100)
	}
	p.bar.Finish()
}

// exportOBJ writes the finished job's meshes as OBJ files and returns how
// many it wrote.
func exportOBJ(frames *framestream.Service, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create export dir")
	}
	if data, ok := frames.SingleResult(); ok {
		var rec models.FrameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return 0, errors.Wrap(err, "decode result")
		}
		return writeRecord(dir, "image", &rec, nil)
	}

	data, ok := frames.Manifest()
	if !ok {
		return 0, errors.New("no result to export")
	}
	var manifest models.VideoManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return 0, errors.Wrap(err, "decode manifest")
	}
	var shared models.Faces
	if data, ok := frames.Topology(); ok {
		if err := json.Unmarshal(data, &shared); err != nil {
			return 0, errors.Wrap(err, "decode faces")
		}
	}

	total := 0
	for _, pf := range manifest.ProcessedFrames {
		data, err := frames.Frame(pf.File)
		if err != nil {
			return total, err
		}
		var rec models.FrameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return total, errors.Wrapf(err, "decode %s", pf.File)
		}
		n, err := writeRecord(dir, fmt.Sprintf("frame_%06d", pf.FrameIdx), &rec, shared)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeRecord(dir, stem string, rec *models.FrameRecord, shared models.Faces) (int, error) {
	faces, err := rec.Faces.Resolve(shared)
	if err != nil {
		return 0, err
	}
	for i, p := range rec.People {
		path := filepath.Join(dir, fmt.Sprintf("%s_person%d.obj", stem, i))
		f, err := os.Create(path)
		if err != nil {
			return i, errors.Wrap(err, "create obj")
		}
		err = artifact.ExportOBJ(f, p.Mesh.Vertices, faces)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return i, errors.Wrapf(err, "write %s", path)
		}
	}
	return len(rec.People), nil
}
