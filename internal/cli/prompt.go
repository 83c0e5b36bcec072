package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Confirmer asks the operator to approve a destructive operation.
type Confirmer struct {
	// Yes approves without prompting.
	Yes    bool
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// Confirm prompts with label and a y/N default. A "no" answer or Ctrl+C
// returns an error wrapping types.ErrAborted.
func (c Confirmer) Confirm(label string) error {
	if c.Yes {
		return nil
	}
	prompt := promptui.Prompt{
		Label:     label + " [y/N]",
		IsConfirm: true,
		Stdin:     c.Stdin,
		Stdout:    c.Stdout,
	}
	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return fmt.Errorf("%w: %s", types.ErrAborted, label)
		}
		return err
	}
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "y", "yes":
		return nil
	default:
		return fmt.Errorf("%w: %s", types.ErrAborted, label)
	}
}
