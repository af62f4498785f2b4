package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"navconsole/internal/progress"
	"navconsole/internal/reconcile"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func renderEvent(event ProgressEvent) string {
	switch event.Type {
	case EventProgress:
		return renderProgress(event)
	case EventSuccess:
		line := doneStyle.Render("✓ " + event.Message)
		if event.RequestID != "" && len(event.Steps) > 0 {
			line = fmt.Sprintf("%s\n%s", line, renderSteps(event.Steps))
		}
		return line
	case EventError:
		line := failedStyle.Render("✗ " + event.Message)
		if len(event.Steps) > 0 {
			line = fmt.Sprintf("%s\n%s", line, renderSteps(event.Steps))
		}
		return line
	case EventResult:
		if entities, ok := event.Data.([]reconcile.Entity); ok {
			return renderEntities(reconcile.Kind(event.Code), entities)
		}
	}
	return event.Message
}

func renderProgress(event ProgressEvent) string {
	var sb strings.Builder
	sb.WriteString(mutedStyle.Render(shortID(event.RequestID)))
	sb.WriteString(" ")
	sb.WriteString(runningStyle.Render(event.Message))
	if event.Percent > 0 {
		sb.WriteString(fmt.Sprintf(" %d%%", event.Percent))
	}
	if event.ETA != "" {
		sb.WriteString(mutedStyle.Render(" (ETA " + event.ETA + ")"))
	}
	return sb.String()
}

// renderSteps renders one line per step with a state marker.
func renderSteps(steps []progress.Step) string {
	lines := make([]string, 0, len(steps))
	for _, step := range steps {
		switch step.State {
		case progress.StepDone:
			lines = append(lines, doneStyle.Render("  ✓ "+step.Label))
		case progress.StepFailed:
			lines = append(lines, failedStyle.Render("  ✗ "+step.Label))
		default:
			line := "  • " + step.Label
			if step.Progress != nil {
				line += fmt.Sprintf(" %.0f%%", *step.Progress)
			}
			lines = append(lines, runningStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func renderEntities(kind reconcile.Kind, entities []reconcile.Entity) string {
	title := strings.ToUpper(string(kind)) + "S"
	if len(entities) == 0 {
		return headerStyle.Render(title) + "\n" + mutedStyle.Render("  (none)")
	}

	idWidth, nameWidth := len("ID"), len("NAME")
	for _, e := range entities {
		idWidth = max(idWidth, len(e.ID))
		nameWidth = max(nameWidth, len(e.Name))
	}
	idCol := lipgloss.NewStyle().Width(idWidth + 2)
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(idCol.Render("ID") + nameCol.Render("NAME") + "STATUS"))
	for _, e := range entities {
		sb.WriteString("\n")
		sb.WriteString(idCol.Render(e.ID))
		sb.WriteString(nameCol.Render(e.Name))
		sb.WriteString(renderStatus(e))
	}
	return sb.String()
}

func renderStatus(e reconcile.Entity) string {
	if !e.Placeholder {
		return e.Status
	}
	switch e.Status {
	case reconcile.StatusFailed:
		return failedStyle.Render(e.Status + " " + e.Message)
	case reconcile.StatusCompleted:
		return doneStyle.Render(e.Status)
	}
	status := fmt.Sprintf("%s %s", e.Status, e.Message)
	if e.Progress > 0 {
		status += fmt.Sprintf(" %.0f%%", e.Progress)
	}
	if e.ETA != "" {
		status += " (ETA " + e.ETA + ")"
	}
	return runningStyle.Render(status)
}

func renderError(err error) string {
	return failedStyle.Render("Error: " + err.Error())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
