package tui

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/store"
	"github.com/glabrego/canto-ng/internal/tui/actions"
	"github.com/glabrego/canto-ng/internal/tui/view"
)

// Service is the daemon session the front-end drives. Apply, Start, Tick,
// Refresh and Transform run on the UI loop; the rest are called from
// commands.
type Service interface {
	actions.Service
	Mirror() *mirror.Mirror
	Store() *store.Store
	Bus() *hooks.Bus
	Apply(in protocol.Inbound)
	Start() error
	Tick()
	Refresh()
	Transform(expr string, temporary bool) error
}

const fetchTimeout = 30 * time.Second

type Options struct {
	Logger     *logging.Logger
	HTTPClient *http.Client
	// FetchDir is where fetched enclosures are kept while a browser uses
	// them. Empty means the system temp dir.
	FetchDir         string
	ExitTimeout      time.Duration
	ReconnectTimeout time.Duration
	TickInterval     time.Duration
	Measure          cellgrid.Measurer
}

type Model struct {
	svc    Service
	screen *Screen
	gui    *gui
	opener *opener
	logs   *logQueue
	fx     *effects
	log    *slog.Logger
	tee    *logging.Tee
	tick   time.Duration

	width  int
	height int
}

func NewModel(svc Service, opts Options) Model {
	logger := logging.Discard()
	var tee *logging.Tee
	if opts.Logger != nil {
		logger, tee = opts.Logger.Logger, opts.Logger.Tee
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = 5 * time.Second
	}
	if opts.ReconnectTimeout <= 0 {
		opts.ReconnectTimeout = 10 * time.Second
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	fx := &effects{}
	op := &opener{
		mirror:  svc.Mirror(),
		fx:      fx,
		client:  opts.HTTPClient,
		dir:     opts.FetchDir,
		timeout: fetchTimeout,
		log:     logger,
	}
	dispatch := command.NewDispatcher(command.NewRegistry(), logger)
	env := &view.Env{
		Mirror:   svc.Mirror(),
		Store:    svc.Store(),
		Bus:      svc.Bus(),
		Dispatch: dispatch,
		Opener:   op,
		Measure:  opts.Measure,
		Log:      logger,
	}
	g := &gui{
		svc:              svc,
		mirror:           svc.Mirror(),
		dispatch:         dispatch,
		fx:               fx,
		log:              logger,
		owner:            hooks.NewOwner(),
		exitTimeout:      opts.ExitTimeout,
		reconnectTimeout: opts.ReconnectTimeout,
	}
	g.register()
	g.screen = newScreen(env, fx, logger)

	logs := newLogQueue()
	if tee != nil {
		tee.Attach(logs)
	}
	return Model{
		svc:    svc,
		screen: g.screen,
		gui:    g,
		opener: op,
		logs:   logs,
		fx:     fx,
		log:    logger,
		tee:    tee,
		tick:   opts.TickInterval,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		actions.WaitInboundCmd(m.svc.Inbound()),
		actions.WaitLogCmd(m.logs.notify),
		actions.TickCmd(m.tick),
		m.fx.take(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var next tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.screen.Resize(msg.Height, msg.Width)
	case tea.KeyMsg:
		m.key(msg)
	case actions.InboundMsg:
		m.svc.Apply(msg.In)
		next = actions.WaitInboundCmd(m.svc.Inbound())
	case actions.InboundClosedMsg:
		m.log.Debug("inbound channel closed")
	case actions.LogMsg:
		m.logs.drain(view.Sink{Mirror: m.svc.Mirror()})
		next = actions.WaitLogCmd(m.logs.notify)
	case actions.TickMsg:
		m.svc.Tick()
		next = actions.TickCmd(m.tick)
	case clearStatusMsg:
		m.screen.clearInfo(msg.id)
	case actions.ReconnectSuccessMsg:
		if err := m.svc.Start(); err != nil {
			m.log.Error(fmt.Sprintf("Reconnect failed: %v", err))
		} else {
			m.log.Info("Reconnected.")
		}
	case actions.ReconnectErrorMsg:
		m.log.Error(fmt.Sprintf("Reconnect failed: %v", msg.Err))
	case actions.ExitDoneMsg:
		if msg.Err != nil {
			m.log.Debug("exit without daemon sync", "error", msg.Err)
		}
		m.shutdown()
		return m, tea.Quit
	case actions.OpenURLSuccessMsg:
		m.log.Info(msg.Status)
	case actions.OpenURLErrorMsg:
		m.log.Error(msg.Err.Error())
	case actions.FetchSuccessMsg:
		m.opener.open(msg.Local, msg.Local)
	case actions.FetchErrorMsg:
		m.log.Error(msg.Err.Error())
	case browserExitMsg:
		if msg.local != "" {
			m.opener.remove(msg.local)
		}
		if msg.err != nil {
			m.log.Error(fmt.Sprintf("Browser failed: %v", msg.err))
		}
	}
	return m, m.batch(next)
}

func (m Model) batch(next tea.Cmd) tea.Cmd {
	fx := m.fx.take()
	switch {
	case next == nil:
		return fx
	case fx == nil:
		return next
	}
	return tea.Batch(next, fx)
}

func (m Model) key(msg tea.KeyMsg) {
	name := keyName(msg)
	if err := m.screen.Key(name, printable(msg)); err != nil {
		m.log.Error(err.Error())
		return
	}
	if name == "C-c" {
		if _, bound := m.screen.Binding(name); !bound {
			m.gui.quit()
		}
	}
}

func (m Model) shutdown() {
	m.opener.cleanup()
	if m.tee != nil {
		m.tee.Detach()
	}
	m.screen.Close()
}

func (m Model) View() string {
	return m.screen.Render()
}

// Frame is the plain text of the last composed frame.
func (m Model) Frame() string {
	if m.screen.frame == nil {
		return ""
	}
	return m.screen.frame.String()
}
