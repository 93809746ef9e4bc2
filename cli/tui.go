package cli

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fahmaliyi/zkseed/account"
	"github.com/fahmaliyi/zkseed/store"
)

type viewState int

const (
	stateTable viewState = iota
	stateShowRecord
	stateCompose
	stateDecrypt
	stateRunning
	stateResult
)

type stepMsg struct {
	step    account.Step
	substep int
}

type signupDoneMsg struct {
	res *account.SignupResult
	err error
}

type encryptDoneMsg struct {
	res *account.EncryptResult
	err error
}

type decryptDoneMsg struct {
	msg string
	err error
}

type model struct {
	app      *App
	records  []store.Record
	cursor   int
	state    viewState
	selected *store.Record

	compose textinput.Model
	paste   textarea.Model
	spin    spinner.Model

	steps   chan stepMsg
	running account.Step
	done    map[account.Step][]int

	result string
	msg    string
	err    error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newModel(app *App) model {
	ti := textinput.New()
	ti.Placeholder = "Message"
	ti.CharLimit = 4096

	ta := textarea.New()
	ta.Placeholder = "Paste an armored PGP message"
	ta.SetWidth(72)
	ta.SetHeight(12)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		app:     app,
		state:   stateTable,
		compose: ti,
		paste:   ta,
		spin:    sp,
		steps:   make(chan stepMsg, 16),
		done:    map[account.Step][]int{},
	}
	m.refresh()
	return m
}

// RunTUI starts the interactive terminal UI.
func RunTUI(app *App) error {
	m := newModel(app)
	app.Service.SetObserver(func(step account.Step, substep int) {
		select {
		case m.steps <- stepMsg{step, substep}:
		default:
		}
	})
	defer app.Service.SetObserver(nil)

	_, err := tea.NewProgram(m).Run()
	return err
}

func (m *model) refresh() {
	list, err := m.app.Service.Users().List()
	if err != nil {
		m.err = err
		return
	}
	m.records = list
	if m.cursor >= len(m.records) {
		m.cursor = len(m.records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func waitForStep(ch chan stepMsg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m model) start(step account.Step, run tea.Cmd) (model, tea.Cmd) {
	m.state = stateRunning
	m.running = step
	m.done = map[account.Step][]int{}
	m.err = nil
	m.msg = ""
	return m, tea.Batch(m.spin.Tick, run)
}

// --- Tea Model interface ---
// Init starts the one step listener; each stepMsg re-arms it.
func (m model) Init() tea.Cmd {
	return waitForStep(m.steps)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepMsg:
		m.done[msg.step] = append(m.done[msg.step], msg.substep)
		return m, waitForStep(m.steps)
	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case signupDoneMsg:
		return m.finish(msg.err, func() string {
			r := msg.res
			return fmt.Sprintf("Seed phrase:\n\n  %s\n\nRecord %s\n%s · %s · %s · %s",
				r.SeedPhrase, r.Record.ID, r.Details.KeyAlgorithm, r.Details.Encryption,
				r.Details.KeyDerivation, r.Details.PasswordHashing)
		})
	case encryptDoneMsg:
		return m.finish(msg.err, func() string {
			return fmt.Sprintf("%s\nStored on %s (%d messages)",
				msg.res.EncryptedMessage, msg.res.Record.ID, msg.res.Record.MessageCount)
		})
	case decryptDoneMsg:
		return m.finish(msg.err, func() string { return "Decrypted message:\n\n  " + msg.msg })
	}

	switch m.state {
	case stateTable:
		return updateTable(m, msg)
	case stateShowRecord:
		return updateShowRecord(m, msg)
	case stateCompose:
		return updateCompose(m, msg)
	case stateDecrypt:
		return updateDecrypt(m, msg)
	case stateResult:
		return updateResult(m, msg)
	default:
		return m, nil
	}
}

func (m model) finish(err error, render func() string) (model, tea.Cmd) {
	m.state = stateResult
	m.err = err
	if err == nil {
		m.result = render()
	}
	m.refresh()
	return m, nil
}

func (m model) View() string {
	switch m.state {
	case stateTable:
		return viewTable(m)
	case stateShowRecord:
		return viewShowRecord(m)
	case stateCompose:
		return viewCompose(m)
	case stateDecrypt:
		return viewDecrypt(m)
	case stateRunning:
		return viewRunning(m)
	case stateResult:
		return viewResult(m)
	default:
		return "Unknown state"
	}
}

// --- Table ---
func updateTable(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		if len(m.records) > 0 {
			m.selected = &m.records[m.cursor]
			m.state = stateShowRecord
		}
	case "s":
		svc := m.app.Service
		return m.start(account.StepSignup, func() tea.Msg {
			res, err := svc.Signup()
			return signupDoneMsg{res, err}
		})
	case "e":
		if len(m.records) == 0 {
			m.msg = "Sign up first."
			return m, nil
		}
		m.selected = &m.records[m.cursor]
		m.compose.SetValue("")
		m.compose.Focus()
		m.state = stateCompose
		return m, textinput.Blink
	case "x":
		m.paste.SetValue("")
		m.paste.Focus()
		m.state = stateDecrypt
		return m, textarea.Blink
	case "c":
		if len(m.records) > 0 {
			clipboard.WriteAll(m.records[m.cursor].PublicKey)
			m.msg = fmt.Sprintf("Public key copied! (clears in %s)", m.app.Config.ClipboardClearAfter())
			clearLater(m.app.Config.ClipboardClearAfter())
		}
	case "d":
		if len(m.records) > 0 {
			if err := m.app.Service.Users().Delete(m.records[m.cursor].ID); err != nil {
				m.err = err
			}
			m.refresh()
		}
	case "r":
		m.refresh()
	}
	return m, nil
}

func viewTable(m model) string {
	s := titleStyle.Render("Server Records") + "\n\n"
	if len(m.records) == 0 {
		s += dimStyle.Render("No records yet. Press 's' to sign up.") + "\n"
	}
	for i, r := range m.records {
		line := fmt.Sprintf("%-36s  %-20s  %-10s  %3d msg", r.ID, r.CreatedAt, r.KeyAlgorithm, r.MessageCount)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		s += line + "\n"
	}
	if m.msg != "" {
		s += "\n" + msgStyle.Render(m.msg)
	}
	if m.err != nil {
		s += "\n" + errStyle.Render(m.err.Error())
	}
	s += "\nCommands: j/k=move, enter=show, s=signup, e=encrypt, x=decrypt, c=copy public key, d=delete, r=refresh, q=quit"
	return s
}

// --- Show Record ---
func updateShowRecord(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "q":
			m.state = stateTable
			m.selected = nil
		case "c":
			clipboard.WriteAll(m.selected.PublicKey)
			m.msg = "Public key copied!"
			clearLater(m.app.Config.ClipboardClearAfter())
		}
	}
	return m, nil
}

func viewShowRecord(m model) string {
	r := m.selected
	s := titleStyle.Render("Record "+r.ID) + "\n\n"
	s += fmt.Sprintf("Created:        %s\nVersion:        %s\nKey algorithm:  %s\nLogin hash:     %s\n",
		r.CreatedAt, r.Version, r.KeyAlgorithm, r.LoginHash)
	s += fmt.Sprintf("PBKDF2 salt:    %s\nWrapped key:    %s\nIV:             %s\nTag:            %s\n",
		r.EncSalt, short(r.EncryptedPrivateKey, 40), r.EncryptedPrivateKeyIV, r.EncryptedPrivateKeyTag)
	s += fmt.Sprintf("Messages:       %d\nLast updated:   %s\n", r.MessageCount, r.LastUpdated)
	if r.EncryptedUserData != "" {
		s += "\n" + dimStyle.Render(r.EncryptedUserData)
	}
	if m.msg != "" {
		s += "\n" + msgStyle.Render(m.msg)
	}
	s += "\nPress 'c' to copy the public key, Esc to return"
	return s
}

// --- Compose ---
func updateCompose(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.compose.Blur()
			m.state = stateTable
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.compose.Value())
			if text == "" {
				return m, nil
			}
			m.compose.Blur()
			svc, rec := m.app.Service, *m.selected
			return m.start(account.StepEncrypt, func() tea.Msg {
				res, err := svc.EncryptAndStore(text, rec.PublicKey, rec.LoginHash)
				return encryptDoneMsg{res, err}
			})
		}
	}
	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func viewCompose(m model) string {
	s := titleStyle.Render("Encrypt to "+m.selected.ID) + "\n\n"
	s += m.compose.View() + "\n"
	s += "\nPress Enter to encrypt and store, Esc to cancel"
	return s
}

// --- Decrypt ---
func updateDecrypt(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.paste.Blur()
			m.state = stateTable
			return m, nil
		case "ctrl+s":
			armored := strings.TrimSpace(m.paste.Value())
			if armored == "" {
				return m, nil
			}
			m.paste.Blur()
			svc := m.app.Service
			return m.start(account.StepDecrypt, func() tea.Msg {
				out, err := svc.DecryptMessage(armored)
				return decryptDoneMsg{out, err}
			})
		}
	}
	var cmd tea.Cmd
	m.paste, cmd = m.paste.Update(msg)
	return m, cmd
}

func viewDecrypt(m model) string {
	s := titleStyle.Render("Decrypt Message") + "\n\n"
	s += m.paste.View() + "\n"
	s += "\nPress Ctrl+S to decrypt with the stored seed, Esc to cancel"
	return s
}

// --- Running ---
func viewRunning(m model) string {
	var info account.StepInfo
	for _, st := range account.Steps {
		if st.ID == m.running {
			info = st
		}
	}
	s := titleStyle.Render(info.Title) + "\n" + dimStyle.Render(info.Description) + "\n\n"
	done := map[int]bool{}
	for _, i := range m.done[m.running] {
		done[i] = true
	}
	for i, sub := range info.Substeps {
		switch {
		case done[i]:
			s += msgStyle.Render("  ✓ "+sub) + "\n"
		case i == len(m.done[m.running]):
			s += "  " + m.spin.View() + " " + sub + "\n"
		default:
			s += dimStyle.Render("    "+sub) + "\n"
		}
	}
	return s
}

// --- Result ---
func updateResult(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.err == nil {
				clipboard.WriteAll(m.result)
				m.msg = "Copied!"
				clearLater(m.app.Config.ClipboardClearAfter())
			}
		default:
			m.state = stateTable
			m.result = ""
			m.msg = ""
			m.err = nil
		}
	}
	return m, nil
}

func viewResult(m model) string {
	if m.err != nil {
		return errStyle.Render(m.err.Error()) + "\n\nPress any key to return"
	}
	s := m.result + "\n"
	if m.msg != "" {
		s += "\n" + msgStyle.Render(m.msg)
	}
	s += "\nPress 'c' to copy, any other key to return"
	return s
}
