package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/mhr-streamer/internal/viewer"
	"github.com/amankumarsingh77/mhr-streamer/internal/viewer/tui"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	frameSkip := flag.Int("frame-skip", 0, "frames to skip between processed frames")
	startFrame := flag.Int("start", 0, "first video frame")
	endFrame := flag.Int("end", -1, "video frame to stop before, -1 for the end")
	exportDir := flag.String("export-obj", "exports", "directory the e key writes OBJ files to")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [image-or-video]\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(flag.CommandLine.Output(), "Without a file the viewer follows the job the server is already running.")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := viewer.NewClient(*serverURL, nil)
	if flag.NArg() == 1 {
		id, err := client.Upload(ctx, flag.Arg(0), viewer.UploadOptions{
			FrameSkip:  *frameSkip,
			StartFrame: *startFrame,
			EndFrame:   *endFrame,
		})
		if err != nil {
			log.Fatalf("upload: %v", err)
		}
		log.Printf("job %s submitted", id)
	}

	p := tea.NewProgram(tui.New(ctx, client, *exportDir), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("viewer: %v", err)
	}
}
