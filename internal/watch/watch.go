package watch

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run builds and drives the dashboard program against src until the user
// quits or ctx is cancelled. src is closed on return.
func Run(ctx context.Context, src Source) error {
	defer src.Close()

	m, err := New(ctx, src)
	if err != nil {
		return err
	}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}
