package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/progress"
)

const progressRefresh = 200 * time.Millisecond

var (
	progressWatch bool
	progressJSON  bool
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the daemon's indexing progress",
	Long: `Show the progress of the indexing run inside the daemon, or the result of
the last run when it is idle.

With --watch the view refreshes live until you press q.`,
	Args: cobra.NoArgs,
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().BoolVarP(&progressWatch, "watch", "w", false, "Refresh the view live")
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "Output progress as JSON")
	progressCmd.MarkFlagsMutuallyExclusive("watch", "json")
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	client, err := e.daemonClient()
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("daemon is not running (start it with 'burrow daemon start --background')")
	}

	if progressWatch {
		_, err := tea.NewProgram(newProgressModel(client)).Run()
		return err
	}

	p, err := client.Progress(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to query progress: %w", err)
	}
	if progressJSON {
		return printJSON(p)
	}
	fmt.Println(progressLine(p))
	return nil
}

type progressMsg struct {
	p   progress.Progress
	err error
}

type tickMsg time.Time

// progressModel is the bubbletea model behind progress --watch.
type progressModel struct {
	src      daemon.ProgressSource
	current  progress.Progress
	err      error
	failures int
	updated  time.Time
}

func newProgressModel(src daemon.ProgressSource) progressModel {
	return progressModel{src: src}
}

func (m progressModel) Init() tea.Cmd {
	return m.fetch()
}

func (m progressModel) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), daemon.DefaultClientTimeout)
		defer cancel()
		p, err := src.Progress(ctx)
		return progressMsg{p: p, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(progressRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case progressMsg:
		if msg.err != nil {
			m.err = msg.err
			m.failures++
		} else {
			m.current, m.err, m.failures = msg.p, nil, 0
			m.updated = time.Now()
		}
		return m, tick()
	case tickMsg:
		return m, m.fetch()
	}
	return m, nil
}

func (m progressModel) View() string {
	s := titleStyle.Render("burrow indexer") + "\n\n"
	s += progressLine(m.current) + "\n"

	if m.current.Running {
		s += dimStyle.Render(fmt.Sprintf("phase: %s", m.current.Phase)) + "\n"
	}
	if m.err != nil {
		s += failStyle.Render(fmt.Sprintf("daemon unreachable (%d failed polls): %v", m.failures, m.err)) + "\n"
	}
	if !m.updated.IsZero() {
		s += dimStyle.Render("updated "+m.updated.Format("15:04:05")) + "\n"
	}
	return s + "\n" + dimStyle.Render("press q to quit") + "\n"
}
