// internal/tui/app.go
//
// This is the kiosk TUI. It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the App, wrapping a wizard.Controller that owns the feedback record
// 2. Update: every mutation happens here, including decode and submit results
// 3. View: renders the current screen plus the journey log
//
// Decodes and deliveries run as tea.Cmds and come back as messages, so the
// bubbletea message loop is the single writer for the record.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/inbox"
	"github.com/kingrea/feedback-desk/internal/logbook"
	"github.com/kingrea/feedback-desk/internal/logging"
	"github.com/kingrea/feedback-desk/internal/media"
	"github.com/kingrea/feedback-desk/internal/submission"
	"github.com/kingrea/feedback-desk/internal/transport"
	"github.com/kingrea/feedback-desk/internal/wizard"
)

const journeyLogName = "journey.log"

const (
	contactName = iota
	contactAddress
	contactPhone
	contactFields
)

type detailsFocus int

const (
	focusText detailsFocus = iota
	focusAttachments
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".heic"}

type decodedMsg struct {
	result media.Result
}

type submittedMsg struct {
	result submission.Result
}

type inboxMsg struct {
	batch inbox.Batch
}

type inboxClosedMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithTransport overrides the transport selected by config.
func WithTransport(t submission.Transport) AppOption {
	return func(a *App) {
		if t != nil {
			a.transport = t
		}
	}
}

// WithLogger routes structured logs to l.
func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		a.logger = logging.OrNop(l)
	}
}

// WithInbox delivers drop-folder batches into the details screen.
func WithInbox(batches <-chan inbox.Batch) AppOption {
	return func(a *App) {
		a.inbox = batches
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	config     *config.Config
	controller *wizard.Controller
	logbook    *logbook.Logbook
	logger     *zap.Logger
	transport  submission.Transport
	inbox      <-chan inbox.Batch

	// UI components
	languageMenu list.Model
	contact      [contactFields]textinput.Model
	contactFocus int
	details      textarea.Model
	detailsFocus detailsFocus
	picker       filepicker.Model
	pickerOpen   bool
	selected     int
	spinner      spinner.Model
	review       *reviewRenderer
	notice       string

	width  int
	height int
}

// languageItem implements list.Item for the language screen.
type languageItem struct {
	lang form.Language
}

func (i languageItem) Title() string       { return i.lang.Label() }
func (i languageItem) Description() string { return "Language tag: " + i.lang.Tag().String() }
func (i languageItem) FilterValue() string { return string(i.lang) }

// NewApp creates a new App instance for the kiosk rooted at projectDir.
func NewApp(projectDir string, opts ...AppOption) (*App, error) {
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	a := &App{
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.transport == nil {
		tr, err := transport.New(cfg.Transport())
		if err != nil {
			return nil, err
		}
		a.transport = tr
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), journeyLogName))
	if err != nil {
		a.logger.Warn("journey log unavailable", zap.Error(err))
	} else {
		a.logbook = lb
	}

	pipeline := media.New(
		media.WithLogger(a.logger.Named("media")),
		media.WithMaxConcurrent(cfg.MaxConcurrentDecodes()),
	)
	coordinator := submission.New(a.transport, submission.WithLogger(a.logger.Named("submission")))
	a.controller = wizard.New(pipeline, coordinator, wizard.WithLogger(a.logger.Named("wizard")))

	items := make([]list.Item, 0, len(form.Languages()))
	for _, lang := range form.Languages() {
		items = append(items, languageItem{lang: lang})
	}
	menu := list.New(items, list.NewDefaultDelegate(), 60, 14)
	menu.Title = "Choose your language"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)
	a.languageMenu = menu

	placeholders := [contactFields]string{"Full name", "Address", "+977 98XXXXXXXX"}
	for i := range a.contact {
		input := textinput.New()
		input.Placeholder = placeholders[i]
		input.CharLimit = 120
		input.Prompt = "› "
		a.contact[i] = input
	}

	details := textarea.New()
	details.Placeholder = "Describe your feedback or complaint..."
	details.CharLimit = form.MaxDetailsLength
	details.ShowLineNumbers = false
	details.SetHeight(8)
	a.details = details

	a.picker = newPicker(cfg.ProjectDir)
	a.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))
	a.review = newReviewRenderer()

	a.logInfo("Kiosk opened · transport: %s", cfg.Transport().Mode)
	return a, nil
}

func newPicker(dir string) filepicker.Model {
	picker := filepicker.New()
	picker.CurrentDirectory = dir
	picker.AllowedTypes = imageExtensions
	return picker
}

// Controller exposes the wizard for the headless command and tests.
func (a *App) Controller() *wizard.Controller {
	return a.controller
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.waitForInbox()
}

func (a *App) waitForInbox() tea.Cmd {
	if a.inbox == nil {
		return nil
	}
	ch := a.inbox
	return func() tea.Msg {
		batch, ok := <-ch
		if !ok {
			return inboxClosedMsg{}
		}
		return inboxMsg{batch: batch}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.languageMenu.SetSize(max(20, a.mainWidth()-4), max(8, msg.Height-14))
		a.details.SetWidth(max(20, a.mainWidth()-4))
		for i := range a.contact {
			a.contact[i].Width = max(20, a.mainWidth()-8)
		}
		return a, nil

	case decodedMsg:
		a.applyDecoded(msg.result)
		return a, nil

	case submittedMsg:
		return a, a.settleSubmission(msg.result)

	case inboxMsg:
		var cmd tea.Cmd
		if a.controller.Screen() == wizard.ScreenDetails {
			cmd = a.ingest("inbox", msg.batch.Candidates)
		} else {
			a.logWarn("Inbox files ignored outside the details screen: %s", strings.Join(msg.batch.Paths, ", "))
			a.notice = "Photos can be added on the details screen."
		}
		return a, tea.Batch(cmd, a.waitForInbox())

	case inboxClosedMsg:
		a.inbox = nil
		return a, nil

	case spinner.TickMsg:
		if !a.controller.SubmissionState().Pending() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		switch a.controller.Screen() {
		case wizard.ScreenLanguage:
			return a.updateLanguage(msg)
		case wizard.ScreenContact:
			return a.updateContact(msg)
		case wizard.ScreenDetails:
			return a.updateDetails(msg)
		case wizard.ScreenReview:
			return a.updateReview(msg)
		case wizard.ScreenSuccess:
			return a.updateSuccess(msg)
		}
	}

	if a.pickerOpen {
		var cmd tea.Cmd
		a.picker, cmd = a.picker.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) updateLanguage(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return a, tea.Quit
	case "enter":
		if item, ok := a.languageMenu.SelectedItem().(languageItem); ok {
			a.controller.SelectLanguage(item.lang)
		}
		return a, a.advance()
	}
	var cmd tea.Cmd
	a.languageMenu, cmd = a.languageMenu.Update(msg)
	return a, cmd
}

func (a *App) updateContact(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a, a.back()
	case "tab", "down":
		return a, a.focusContact((a.contactFocus + 1) % contactFields)
	case "shift+tab", "up":
		return a, a.focusContact((a.contactFocus + contactFields - 1) % contactFields)
	case "enter":
		if a.contactFocus < contactFields-1 {
			return a, a.focusContact(a.contactFocus + 1)
		}
		return a, a.advance()
	}
	var cmd tea.Cmd
	a.contact[a.contactFocus], cmd = a.contact[a.contactFocus].Update(msg)
	a.syncContact()
	return a, cmd
}

// syncContact pushes changed inputs into the controller. Unchanged fields
// are left alone so moving the cursor does not clear their errors.
func (a *App) syncContact() {
	draft := a.controller.Draft().Contact
	if v := a.contact[contactName].Value(); v != draft.Name {
		a.controller.SetName(v)
	}
	if v := a.contact[contactAddress].Value(); v != draft.Address {
		a.controller.SetAddress(v)
	}
	if v := a.contact[contactPhone].Value(); v != draft.Phone {
		a.controller.SetPhone(v)
	}
}

func (a *App) focusContact(idx int) tea.Cmd {
	a.contactFocus = idx
	var cmd tea.Cmd
	for i := range a.contact {
		if i == idx {
			cmd = a.contact[i].Focus()
			continue
		}
		a.contact[i].Blur()
	}
	return cmd
}

func (a *App) updateDetails(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.pickerOpen {
		if msg.String() == "esc" {
			a.pickerOpen = false
			return a, nil
		}
		var cmd tea.Cmd
		a.picker, cmd = a.picker.Update(msg)
		if didSelect, path := a.picker.DidSelectFile(msg); didSelect {
			a.pickerOpen = false
			a.picker = newPicker(filepath.Dir(path))
			return a, tea.Batch(cmd, a.ingest("picker", []media.Candidate{media.FileCandidate(path)}))
		}
		if didSelect, path := a.picker.DidSelectDisabledFile(msg); didSelect {
			a.notice = fmt.Sprintf("%s is not an image.", filepath.Base(path))
		}
		return a, cmd
	}

	if msg.Paste {
		if candidates := media.FilesFromPaths(string(msg.Runes)); len(candidates) > 0 {
			return a, a.ingest("paste", candidates)
		}
		focus := a.details.Focus()
		a.detailsFocus = focusText
		return a, tea.Batch(focus, a.updateDetailsText(msg))
	}

	switch msg.String() {
	case "esc":
		return a, a.back()
	case "ctrl+s":
		return a, a.advance()
	case "ctrl+o":
		a.pickerOpen = true
		a.notice = ""
		return a, a.picker.Init()
	case "tab":
		if a.detailsFocus == focusText && len(a.controller.Aggregate().Images) > 0 {
			a.detailsFocus = focusAttachments
			a.details.Blur()
			return a, nil
		}
		a.detailsFocus = focusText
		return a, a.details.Focus()
	}

	if a.detailsFocus == focusAttachments {
		images := a.controller.Aggregate().Images
		switch msg.String() {
		case "up", "k":
			if a.selected > 0 {
				a.selected--
			}
		case "down", "j":
			if a.selected < len(images)-1 {
				a.selected++
			}
		case "x", "delete", "backspace":
			if a.selected < len(images) {
				removed := images[a.selected]
				a.controller.RemoveAttachment(removed.ID)
				a.logInfo("Removed photo %s", removed.DisplayName)
			}
			if remaining := len(a.controller.Aggregate().Images); remaining == 0 {
				a.detailsFocus = focusText
				a.selected = 0
				return a, a.details.Focus()
			} else if a.selected >= remaining {
				a.selected = remaining - 1
			}
		}
		return a, nil
	}

	return a, a.updateDetailsText(msg)
}

// updateDetailsText feeds msg to the textarea and mirrors the result into
// the draft, which enforces the length cap.
func (a *App) updateDetailsText(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	a.details, cmd = a.details.Update(msg)
	a.controller.SetDetails(a.details.Value())
	if a.controller.Draft().Details != a.details.Value() {
		a.details.SetValue(a.controller.Draft().Details)
	}
	return cmd
}

func (a *App) updateReview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a, a.back()
	case "enter", "ctrl+s":
		return a, a.submit()
	}
	return a, nil
}

func (a *App) updateSuccess(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "enter", "n":
		if err := a.controller.Reset(); err != nil {
			a.logError("Reset failed: %v", err)
			return a, nil
		}
		a.notice = ""
		a.logInfo("Ready for new feedback")
		return a, a.enterScreen()
	}
	return a, nil
}

// advance runs Continue and reports validation failures inline.
func (a *App) advance() tea.Cmd {
	from := a.controller.Screen()
	if err := a.controller.Continue(); err != nil {
		var verr *form.ValidationError
		if !errors.As(err, &verr) {
			a.logError("Cannot continue from %s: %v", from, err)
		}
		return nil
	}
	a.logInfo("%s complete", titleCase(from.String()))
	return a.enterScreen()
}

func (a *App) back() tea.Cmd {
	if err := a.controller.Back(); err != nil {
		if errors.Is(err, wizard.ErrInFlight) {
			a.notice = "Please wait for the submission to finish."
		}
		return nil
	}
	return a.enterScreen()
}

// enterScreen seeds the widgets of the new current screen from the
// controller's draft.
func (a *App) enterScreen() tea.Cmd {
	a.pickerOpen = false
	draft := a.controller.Draft()
	switch a.controller.Screen() {
	case wizard.ScreenLanguage:
		for idx, lang := range form.Languages() {
			if lang == draft.Language {
				a.languageMenu.Select(idx)
			}
		}
		if draft.Language == form.LanguageUnset {
			a.languageMenu.Select(0)
		}
	case wizard.ScreenContact:
		a.contact[contactName].SetValue(draft.Contact.Name)
		a.contact[contactAddress].SetValue(draft.Contact.Address)
		a.contact[contactPhone].SetValue(draft.Contact.Phone)
		return a.focusContact(contactName)
	case wizard.ScreenDetails:
		a.details.SetValue(draft.Details)
		a.detailsFocus = focusText
		a.selected = 0
		return a.details.Focus()
	case wizard.ScreenReview:
		a.details.Blur()
	}
	return nil
}

// ingest offers candidates to the controller and schedules a decode command
// per admitted job.
func (a *App) ingest(source string, candidates []media.Candidate) tea.Cmd {
	adm := a.controller.Ingest(candidates)
	a.reportRejections(adm.Rejected)
	if len(adm.Jobs) == 0 {
		return nil
	}
	a.logInfo("Adding %d photo(s) from %s", len(adm.Jobs), source)
	ctx := a.controller.DecodeContext()
	pipeline := a.controller.Pipeline()
	cmds := make([]tea.Cmd, 0, len(adm.Jobs))
	for _, job := range adm.Jobs {
		cmds = append(cmds, func() tea.Msg {
			return decodedMsg{result: pipeline.Decode(ctx, job)}
		})
	}
	return tea.Batch(cmds...)
}

func (a *App) applyDecoded(res media.Result) {
	out := a.controller.ApplyDecoded(res)
	if out.Applied {
		a.logInfo("Attached %s", out.Attachment.DisplayName)
		return
	}
	if out.Rejection.Reason == media.ReasonStale {
		return
	}
	if res.Err != nil {
		a.logger.Warn("decode failed", zap.String("name", res.Job.Name), zap.Error(res.Err))
	}
	a.reportRejections([]media.Rejection{out.Rejection})
}

func (a *App) reportRejections(rejected []media.Rejection) {
	if len(rejected) == 0 {
		return
	}
	var notes []string
	for _, r := range rejected {
		a.logWarn("Photo %s not added: %s", r.Name, r.Reason)
		notes = append(notes, rejectionNote(r))
	}
	a.notice = strings.Join(notes, " ")
}

func rejectionNote(r media.Rejection) string {
	switch r.Reason {
	case media.ReasonNotImage:
		return fmt.Sprintf("%s is not an image.", r.Name)
	case media.ReasonOverLimit:
		return fmt.Sprintf("%s skipped: at most %d photos.", r.Name, form.MaxImages)
	case media.ReasonDecodeFailed:
		return fmt.Sprintf("%s could not be read.", r.Name)
	case wizard.ReasonClosed:
		return "Photos can be added on the details screen."
	default:
		return fmt.Sprintf("%s not added.", r.Name)
	}
}

// submit starts a delivery; the spinner runs until submittedMsg arrives.
func (a *App) submit() tea.Cmd {
	ticket, err := a.controller.BeginSubmit()
	if err != nil {
		if !errors.Is(err, wizard.ErrInFlight) {
			a.logError("Submit refused: %v", err)
		}
		return nil
	}
	a.notice = ""
	a.logInfo("Submitting feedback with %d photo(s)", len(ticket.Payload.Images))
	coordinator := a.controller.Coordinator()
	deliver := func() tea.Msg {
		return submittedMsg{result: coordinator.Deliver(context.Background(), ticket)}
	}
	return tea.Batch(a.spinner.Tick, deliver)
}

func (a *App) settleSubmission(res submission.Result) tea.Cmd {
	wasPending := a.controller.SubmissionState().Pending()
	settled := a.controller.SettleSubmit(res)
	if !wasPending || a.controller.SubmissionState().Pending() {
		return nil
	}
	if a.controller.SubmissionState().Failed() {
		a.logError("Submission failed: %v", settled.Err)
		return nil
	}
	if !settled.OK() || settled.Reference == "" {
		return nil
	}
	a.logInfo("Feedback submitted · reference %s", settled.Reference)
	return a.enterScreen()
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
