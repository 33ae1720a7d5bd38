package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/render"
)

// Action is a choice of the request editing menu.
type Action int

const (
	ActionEditInput Action = iota
	ActionEditJobName
	ActionChangeSpec
	ActionSubmit
	ActionSave
	ActionQuit
)

var actionLabels = map[Action]string{
	ActionEditInput:   "Edit an input",
	ActionEditJobName: "Change the job name",
	ActionChangeSpec:  "Use a different job spec",
	ActionSubmit:      "Submit the job",
	ActionSave:        "Save the request as JSON",
	ActionQuit:        "Quit without submitting",
}

func (a Action) String() string { return actionLabels[a] }

// AskAction shows the editing menu. Submit is offered first once the request
// is valid.
func (a *Asker) AskAction(ctx context.Context, ready bool) (Action, error) {
	actions := []Action{ActionEditInput, ActionEditJobName, ActionChangeSpec, ActionSave, ActionQuit}
	if ready {
		actions = append([]Action{ActionSubmit}, actions...)
	}
	labels := make([]string, len(actions))
	for i, act := range actions {
		labels[i] = act.String()
	}
	i, err := a.Driver.Select(ctx, SelectConfig{Message: "What next?", Options: labels})
	if err != nil {
		return ActionQuit, err
	}
	if i < 0 {
		return ActionQuit, nil
	}
	return actions[i], nil
}

// AskWhichInput lets the user pick one input of form and returns its id.
func (a *Asker) AskWhichInput(ctx context.Context, form *editor.Form) (string, error) {
	editors := form.Editors()
	if len(editors) == 0 {
		return "", ErrKeep
	}
	labels := make([]string, len(editors))
	def := -1
	for i, ed := range editors {
		state := editor.MatchInput(ed.Update(),
			func(v any) string { return truncate(render.Value(v), 40) },
			func() string { return "(missing)" },
			func([]string) string { return "(invalid)" },
		)
		needsAttention := state == "(invalid)" || (state == "(missing)" && !ed.Input().HasDefault())
		if def < 0 && needsAttention {
			def = i
		}
		labels[i] = fmt.Sprintf("%s [%s] %s", ed.Input().ID, ed.Input().Type, state)
	}
	if def < 0 {
		def = 0
	}
	i, err := a.Driver.Select(ctx, SelectConfig{Message: "Input:", Options: labels, DefaultIndex: def, PageSize: 15})
	if err != nil {
		return "", err
	}
	if i < 0 {
		return "", ErrKeep
	}
	return editors[i].Input().ID, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
