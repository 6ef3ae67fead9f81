package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/wizard"
)

const (
	defaultWidth = 100
	logLines     = 8
	formSteps    = 4
)

var (
	accent      = lipgloss.Color("#5B8DEF")
	brand       = lipgloss.Color("#FF6B6B")
	muted       = lipgloss.Color("#AAAAAA")
	faint       = lipgloss.Color("#888888")
	borderColor = lipgloss.Color("#444444")
	danger      = lipgloss.Color("#E5534B")
	success     = lipgloss.Color("#3FB950")

	labelStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(danger)
	hintStyle   = lipgloss.NewStyle().Foreground(muted)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
)

// View renders the current screen beside the journey log.
func (a *App) View() string {
	width := a.frameWidth()
	mainWidth := a.mainWidth()
	logWidth := width - mainWidth - 4

	var content string
	switch a.controller.Screen() {
	case wizard.ScreenLanguage:
		content = a.languageMenu.View()
	case wizard.ScreenContact:
		content = a.renderContact()
	case wizard.ScreenDetails:
		content = a.renderDetails(mainWidth - 4)
	case wizard.ScreenReview:
		content = a.renderReview(mainWidth - 4)
	case wizard.ScreenSuccess:
		content = a.renderSuccess()
	}
	if a.notice != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, content, "", noticeStyle.Render(a.notice))
	}

	mainBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(max(20, mainWidth-2)).
		Render(lipgloss.JoinVertical(lipgloss.Left, a.renderProgress(), "", content))
	body := mainBox
	if logWidth >= 24 {
		if panel := a.renderLogPanel(logWidth - 4); panel != "" {
			body = lipgloss.JoinHorizontal(lipgloss.Top, mainBox, panel)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.renderHeader(), body, a.renderFooter())
}

func (a *App) frameWidth() int {
	if a.width <= 0 {
		return defaultWidth
	}
	return a.width
}

func (a *App) mainWidth() int {
	width := a.frameWidth()
	if width < 80 {
		return width
	}
	return width - max(32, width/3)
}

func (a *App) renderHeader() string {
	org := a.config.Organization()
	title := lipgloss.NewStyle().Bold(true).Foreground(brand).Render("◆ " + strings.ToUpper(org.Name))
	if org.Location == "" {
		return lipgloss.NewStyle().MarginBottom(1).Render(title)
	}
	return lipgloss.NewStyle().MarginBottom(1).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, hintStyle.Render("Feedback desk · "+org.Location)))
}

func (a *App) renderProgress() string {
	screen := a.controller.Screen()
	if screen == wizard.ScreenSuccess {
		return lipgloss.NewStyle().Bold(true).Foreground(success).Render("✓ Submitted")
	}
	var dots []string
	for step := 1; step <= formSteps; step++ {
		switch {
		case step < screen.Step():
			dots = append(dots, lipgloss.NewStyle().Foreground(success).Render("●"))
		case step == screen.Step():
			dots = append(dots, lipgloss.NewStyle().Foreground(accent).Render("●"))
		default:
			dots = append(dots, lipgloss.NewStyle().Foreground(faint).Render("○"))
		}
	}
	label := fmt.Sprintf("Step %d of %d · %s", screen.Step(), formSteps, titleCase(screen.String()))
	return strings.Join(dots, " ") + "  " + labelStyle.Render(label)
}

func (a *App) renderContact() string {
	errs := a.controller.Errors()
	labels := [contactFields]string{"Full Name", "Address", "Phone Number"}
	fields := [contactFields]string{form.FieldName, form.FieldAddress, form.FieldPhone}
	var rows []string
	for i := range a.contact {
		rows = append(rows, labelStyle.Render(labels[i]), a.contact[i].View())
		if msg := errs[fields[i]]; msg != "" {
			rows = append(rows, errorStyle.Render(msg))
		}
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

func (a *App) renderDetails(width int) string {
	if a.pickerOpen {
		return lipgloss.JoinVertical(lipgloss.Left,
			labelStyle.Render("Choose a photo"),
			hintStyle.Render(a.picker.CurrentDirectory),
			a.picker.View())
	}
	draft := a.controller.Draft()
	counter := hintStyle.Render(fmt.Sprintf("%d/%d", form.DetailsLength(draft.Details), form.MaxDetailsLength))
	rows := []string{
		labelStyle.Render("Details") + "  " + counter,
		a.details.View(),
		"",
		a.renderAttachments(width),
	}
	if pending := a.controller.PendingDecodes(); pending > 0 {
		rows = append(rows, hintStyle.Render(fmt.Sprintf("Reading %d photo(s)...", pending)))
	}
	if dir := a.config.InboxDir(); dir != "" {
		rows = append(rows, hintStyle.Render("Drop photos into "+dir+" or paste their paths."))
	}
	return strings.Join(rows, "\n")
}

func (a *App) renderAttachments(width int) string {
	images := a.controller.Aggregate().Images
	head := labelStyle.Render(fmt.Sprintf("Photos (%d/%d)", len(images), form.MaxImages))
	if len(images) == 0 {
		return head + "\n" + hintStyle.Render("No photos attached.")
	}
	lines := []string{head}
	for i, img := range images {
		line := fmt.Sprintf("  %d. %s", i+1, img.DisplayName)
		if a.detailsFocus == focusAttachments && i == a.selected {
			line = lipgloss.NewStyle().Bold(true).Foreground(accent).Render("› " + strings.TrimLeft(line, " "))
		}
		lines = append(lines, lipgloss.NewStyle().MaxWidth(max(10, width)).Render(line))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderReview(width int) string {
	summary := a.review.Render(a.controller.Aggregate(), width)
	state := a.controller.SubmissionState()
	switch {
	case state.Pending():
		summary += "\n" + a.spinner.View() + " Submitting..."
	case state.Failed():
		banner := lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(danger).
			Foreground(danger).
			Padding(0, 1).
			Render(state.Message)
		summary += "\n" + banner
	}
	return summary
}

func (a *App) renderSuccess() string {
	org := a.config.Organization()
	reviewer := org.Reviewer
	if reviewer == "" {
		reviewer = org.Name
	}
	return strings.Join([]string{
		lipgloss.NewStyle().Bold(true).Foreground(success).Render("Thank you!"),
		"",
		fmt.Sprintf("Your feedback has been submitted to %s.", reviewer),
		"",
		labelStyle.Render("Reference ID: ") + lipgloss.NewStyle().Foreground(accent).Render(a.controller.Reference()),
		hintStyle.Render("Please keep this reference for follow-up."),
	}, "\n")
}

func (a *App) renderFooter() string {
	var keys string
	switch a.controller.Screen() {
	case wizard.ScreenLanguage:
		keys = "↑/↓ choose · enter continue · q quit"
	case wizard.ScreenContact:
		keys = "tab next field · enter continue · esc back"
	case wizard.ScreenDetails:
		if a.pickerOpen {
			keys = "enter select · esc close picker"
		} else {
			keys = "ctrl+s review · ctrl+o add photo · tab photos · x remove · esc back"
		}
	case wizard.ScreenReview:
		keys = "enter submit · esc edit"
	case wizard.ScreenSuccess:
		keys = "enter submit another feedback · q quit"
	}
	return lipgloss.NewStyle().Foreground(faint).MarginTop(1).Render(keys + " · ctrl+c exit")
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(logLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(muted).
		Width(max(10, width)).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
