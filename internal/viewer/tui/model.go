package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/viewer"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

const frameBuffer = 16

// Backend is the part of the server API the viewer reads from.
type Backend interface {
	viewer.FrameSource
	viewer.ProgressSource
	Manifest(ctx context.Context) (*models.VideoManifest, error)
	SingleResult(ctx context.Context) (*models.FrameRecord, error)
}

type statusMsg models.ProcessingStatus

type pollErrMsg struct{ err error }

type pollDoneMsg struct {
	status models.ProcessingStatus
	err    error
}

type manifestMsg struct {
	manifest *models.VideoManifest
	err      error
}

type frameMsg viewer.FrameView

type singleMsg struct {
	rec *models.FrameRecord
	err error
}

type stepMsg struct{ err error }

type exportedMsg struct {
	files []string
	err   error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the bubbletea program that watches a job and plays its frames.
type Model struct {
	ctx     context.Context
	backend Backend

	cache  *viewer.FrameCache
	player *viewer.PlaybackScheduler
	view   *viewer.ViewLock
	poller *viewer.Poller

	frames  chan viewer.FrameView
	updates chan tea.Msg

	bar     progress.Model
	jump    textinput.Model
	jumping bool

	status     models.ProcessingStatus
	haveStatus bool
	total      int
	frame      viewer.FrameView
	single     *models.FrameRecord
	camera     viewer.Camera
	message    string
	exportDir  string
	width      int
}

// New builds the viewer model. ctx bounds every request and the playback
// timers; cancel it after the program exits.
func New(ctx context.Context, backend Backend, exportDir string) Model {
	frames := make(chan viewer.FrameView, frameBuffer)
	cache := viewer.NewFrameCache(backend)
	onFrame := func(v viewer.FrameView) {
		select {
		case frames <- v:
		case <-ctx.Done():
		}
	}

	jump := textinput.New()
	jump.Placeholder = "frame number"
	jump.CharLimit = 8
	jump.Width = 16

	return Model{
		ctx:       ctx,
		backend:   backend,
		cache:     cache,
		player:    viewer.NewPlaybackScheduler(cache, onFrame),
		view:      viewer.NewViewLock(true),
		poller:    viewer.NewPoller(backend),
		frames:    frames,
		updates:   make(chan tea.Msg, frameBuffer),
		bar:       progress.New(progress.WithDefaultGradient()),
		jump:      jump,
		exportDir: exportDir,
		width:     100,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), waitUpdate(m.updates), waitFrame(m.frames))
}

func (m Model) pollCmd() tea.Cmd {
	ctx, updates := m.ctx, m.updates
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}
	return func() tea.Msg {
		status, err := m.poller.Run(ctx,
			func(s models.ProcessingStatus) { send(statusMsg(s)) },
			func(err error) { send(pollErrMsg{err: err}) },
		)
		return pollDoneMsg{status: status, err: err}
	}
}

func waitUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func waitFrame(ch <-chan viewer.FrameView) tea.Cmd {
	return func() tea.Msg {
		return frameMsg(<-ch)
	}
}

func (m Model) manifestCmd() tea.Cmd {
	return func() tea.Msg {
		mf, err := m.backend.Manifest(m.ctx)
		return manifestMsg{manifest: mf, err: err}
	}
}

func (m Model) singleCmd() tea.Cmd {
	return func() tea.Msg {
		rec, err := m.backend.SingleResult(m.ctx)
		return singleMsg{rec: rec, err: err}
	}
}

func (m Model) stepCmd(op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return stepMsg{err: op(m.ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-8, 20, 80)
		return m, nil
	case statusMsg:
		m.status = models.ProcessingStatus(msg)
		m.haveStatus = true
		cmds := []tea.Cmd{waitUpdate(m.updates)}
		if m.status.IsVideo {
			cmds = append(cmds, m.manifestCmd())
		}
		return m, tea.Batch(cmds...)
	case pollErrMsg:
		m.message = "error: " + msg.err.Error()
		return m, waitUpdate(m.updates)
	case pollDoneMsg:
		if msg.err != nil {
			return m, nil
		}
		m.status = msg.status
		m.haveStatus = true
		if m.status.Error != nil {
			return m, nil
		}
		if m.status.IsVideo {
			return m, m.manifestCmd()
		}
		return m, m.singleCmd()
	case manifestMsg:
		return m.applyManifest(msg)
	case frameMsg:
		m.frame = viewer.FrameView(msg)
		if m.frame.Err != nil {
			m.message = "error: " + m.frame.Err.Error()
		} else if b, ok := viewer.SceneBounds(m.frame.Record); ok {
			m.camera = m.view.FrameChanged(b)
		}
		return m, waitFrame(m.frames)
	case singleMsg:
		if msg.err != nil {
			m.message = "error: " + msg.err.Error()
			return m, nil
		}
		m.single = msg.rec
		if b, ok := viewer.SceneBounds(msg.rec); ok {
			m.camera = m.view.FrameChanged(b)
		}
		return m, nil
	case stepMsg:
		if msg.err != nil {
			m.message = "error: " + msg.err.Error()
		}
		return m, nil
	case exportedMsg:
		if msg.err != nil {
			m.message = "error: " + msg.err.Error()
		} else {
			m.message = fmt.Sprintf("exported %d file(s) to %s", len(msg.files), m.exportDir)
		}
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.jumping {
		return m.updateJump(keyMsg)
	}
	return m.updateKeys(keyMsg)
}

func (m Model) applyManifest(msg manifestMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.message = "error: " + msg.err.Error()
		return m, nil
	}
	if msg.manifest == nil {
		return m, nil
	}
	first := m.total == 0
	m.player.SetManifest(msg.manifest)
	m.total = len(msg.manifest.ProcessedFrames)
	if first && m.total > 0 {
		return m, m.stepCmd(func(ctx context.Context) error { return m.player.Seek(ctx, 0) })
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch msg.String() {
	case "ctrl+c", "q":
		m.player.Pause()
		return m, tea.Quit
	case " ", "space":
		m.player.TogglePlay(m.ctx)
		return m, nil
	case "right":
		return m, m.stepCmd(m.player.Next)
	case "left":
		return m, m.stepCmd(m.player.Prev)
	case "shift+right":
		return m, m.stepCmd(func(ctx context.Context) error { return m.player.Skip(ctx, viewer.FastSkipFrames) })
	case "shift+left":
		return m, m.stepCmd(func(ctx context.Context) error { return m.player.Skip(ctx, -viewer.FastSkipFrames) })
	case "]":
		m.message = fmt.Sprintf("speed %.2fx", m.player.ChangeSpeed(viewer.SpeedStep))
		return m, nil
	case "[":
		m.message = fmt.Sprintf("speed %.2fx", m.player.ChangeSpeed(-viewer.SpeedStep))
		return m, nil
	case "g":
		m.jumping = true
		m.jump.Reset()
		return m, m.jump.Focus()
	case "m":
		if m.player.AddMarker() {
			m.message = fmt.Sprintf("marker added at frame %d", m.player.Current()+1)
		}
		return m, nil
	case "x":
		if m.player.RemoveMarker(m.player.Current()) {
			m.message = fmt.Sprintf("marker removed at frame %d", m.player.Current()+1)
		}
		return m, nil
	case "n":
		return m, m.stepCmd(m.player.NextMarker)
	case "l":
		m.view.SetLocked(!m.view.Locked())
		return m, nil
	case "1":
		return m.setAngle(viewer.ViewFront)
	case "2":
		return m.setAngle(viewer.ViewBack)
	case "3":
		return m.setAngle(viewer.ViewLeft)
	case "4":
		return m.setAngle(viewer.ViewRight)
	case "+", "=":
		m.view.Zoom(viewer.ZoomIn)
		m.camera = m.view.Camera()
		return m, nil
	case "-":
		m.view.Zoom(viewer.ZoomOut)
		m.camera = m.view.Camera()
		return m, nil
	case ",":
		m.view.Rotate(-viewer.RotateStepDegrees)
		m.camera = m.view.Camera()
		return m, nil
	case ".":
		m.view.Rotate(viewer.RotateStepDegrees)
		m.camera = m.view.Camera()
		return m, nil
	case "r":
		m.view.Reset()
		m.camera = m.view.Camera()
		return m, nil
	case "e":
		rec := m.displayed()
		if rec == nil {
			m.message = "nothing to export yet"
			return m, nil
		}
		return m, exportCmd(m.exportDir, m.exportStem(), rec)
	}
	return m, nil
}

func (m Model) setAngle(angle viewer.ViewAngle) (tea.Model, tea.Cmd) {
	if err := m.view.SetViewAngle(angle); err != nil {
		m.message = "error: " + err.Error()
		return m, nil
	}
	m.camera = m.view.Camera()
	return m, nil
}

func (m Model) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.jumping = false
		m.jump.Blur()
		return m, nil
	case tea.KeyEnter:
		m.jumping = false
		m.jump.Blur()
		n, err := strconv.Atoi(strings.TrimSpace(m.jump.Value()))
		if err != nil {
			m.message = "error: not a frame number"
			return m, nil
		}
		return m, m.stepCmd(func(ctx context.Context) error { return m.player.JumpToFrame(ctx, n) })
	}
	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return m, cmd
}

// displayed is the record on screen: the current video frame or the image result.
func (m Model) displayed() *models.FrameRecord {
	if m.frame.Record != nil {
		return m.frame.Record
	}
	return m.single
}

func (m Model) exportStem() string {
	if m.frame.Record != nil {
		return fmt.Sprintf("frame_%06d", m.frame.FrameIdx)
	}
	return "image"
}

func exportCmd(dir, stem string, rec *models.FrameRecord) tea.Cmd {
	return func() tea.Msg {
		files, err := exportOBJ(dir, stem, rec)
		return exportedMsg{files: files, err: err}
	}
}

// exportOBJ writes one OBJ per person of rec.
func exportOBJ(dir, stem string, rec *models.FrameRecord) ([]string, error) {
	faces := rec.Faces.Faces()
	if faces == nil {
		return nil, models.ErrMissingTopology
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}
	var files []string
	for i, p := range rec.People {
		path := filepath.Join(dir, fmt.Sprintf("%s_person%d.obj", stem, i))
		f, err := os.Create(path)
		if err != nil {
			return files, errors.Wrap(err, "create obj")
		}
		err = artifact.ExportOBJ(f, p.Mesh.Vertices, faces)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return files, errors.Wrapf(err, "write %s", path)
		}
		files = append(files, path)
	}
	return files, nil
}

func (m Model) View() string {
	header := titleStyle.Render("mhr viewer") + "\n" +
		mutedStyle.Render("space: play/pause | left/right: step | shift+left/right: skip 5 | [ ]: speed | g: go to frame | m/x/n: markers")
	header += "\n" + mutedStyle.Render("l: lock view | 1-4: front/back/left/right | +/-: zoom | , .: rotate | r: reset | e: export obj | q: quit")

	sections := []string{header, m.renderStatus(), m.renderFrame()}
	if m.jumping {
		sections = append(sections, "go to frame: "+m.jump.View())
	}
	sections = append(sections, m.renderMessage())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatus() string {
	if !m.haveStatus {
		return panelStyle.Render(mutedStyle.Render("waiting for server..."))
	}
	s := m.status
	lines := []string{m.bar.ViewAs(float64(s.Progress) / 100)}
	msg := s.Message
	if msg == "" {
		msg = "idle"
	}
	if s.ETA != "" && s.IsProcessing {
		msg += "  eta " + s.ETA
	}
	lines = append(lines, msg)
	switch {
	case s.Error != nil:
		lines = append(lines, errorStyle.Render("failed: "+*s.Error))
	case s.ResultLocator != nil:
		lines = append(lines, okStyle.Render("done: "+*s.ResultLocator))
	}
	return panelStyle.Width(clampInt(m.width-2, 40, 120)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderFrame() string {
	var lines []string
	switch {
	case m.frame.Record != nil:
		state := "paused"
		if m.player.Playing() {
			state = "playing"
		}
		lines = append(lines,
			fmt.Sprintf("frame %d/%d (video frame %d)  %d people", m.frame.Position+1, m.frame.Total, m.frame.FrameIdx, m.frame.Record.NumPeople),
			fmt.Sprintf("%s at %.2fx  cached %d", state, m.player.Speed(), m.cache.Len()),
		)
		if markers := m.player.Markers(); len(markers) > 0 {
			labels := make([]string, len(markers))
			for i, p := range markers {
				labels[i] = strconv.Itoa(p + 1)
			}
			lines = append(lines, "markers: "+strings.Join(labels, ", "))
		}
	case m.single != nil:
		lines = append(lines, fmt.Sprintf("image %s  %d people", m.single.ImagePath, m.single.NumPeople))
	default:
		lines = append(lines, mutedStyle.Render("no frames yet"))
	}
	lock := "unlocked"
	if m.view.Locked() {
		lock = "locked"
	}
	c := m.camera
	lines = append(lines, fmt.Sprintf("camera %s  pos (%.2f, %.2f, %.2f)  target (%.2f, %.2f, %.2f)",
		lock, c.Position.X(), c.Position.Y(), c.Position.Z(), c.Target.X(), c.Target.Y(), c.Target.Z()))
	return panelStyle.Width(clampInt(m.width-2, 40, 120)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderMessage() string {
	msg := strings.TrimSpace(m.message)
	if msg == "" {
		return ""
	}
	if strings.HasPrefix(msg, "error:") {
		return errorStyle.Render(msg)
	}
	return okStyle.Render(msg)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
