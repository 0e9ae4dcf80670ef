// Package tui is a terminal browser for the knowledge base.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mhassist/internal/domain"
	"mhassist/internal/prompts"
	"mhassist/internal/textutil"
)

// SearchPort is the TUI-facing subset of the assistant.
type SearchPort interface {
	Search(query string, k int, category string) ([]domain.QueryResult, error)
}

const resultLimit = 10

// Model is the Bubble Tea model for the search browser.
type Model struct {
	port      SearchPort
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.QueryResult
	summary   string
	status    string
	category  int
	cursor    int
	ready     bool
	lastQuery string
}

// New creates the model. summary is shown under the title.
func New(port SearchPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Search the knowledge base and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{port: port, input: ti, viewport: vp, summary: summary, status: "Tab switches category, Up/Down browses results."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Category() string { return prompts.Categories[m.category] }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// title, summary, status and one spacer
		reserved := 4 + qh
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.search(q)
				return m, nil
			}
		case "tab":
			m.category = (m.category + 1) % len(prompts.Categories)
			m.status = "Category: " + m.Category()
			if m.lastQuery != "" {
				m.search(m.lastQuery)
			}
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) search(q string) {
	res, err := m.port.Search(q, resultLimit, m.Category())
	switch {
	case err != nil:
		m.status = "Error: " + err.Error()
		m.results = nil
	case len(res) == 0:
		m.status = fmt.Sprintf("No relevant content for %q in %s", q, m.Category())
		m.results = nil
	default:
		m.status = fmt.Sprintf("%d results for %q in %s", len(res), q, m.Category())
		m.results = res
	}
	m.cursor = 0
	m.lastQuery = q
	m.viewport.SetContent(m.renderCurrentResult())
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Knowledge Base") + "  " + categoryStyle.Render("["+m.Category()+"]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  distance=%.3f  source=%s", m.cursor+1, len(m.results), r.Distance, r.Source())
	return title + "\n\n" + highlightBestSentence(r.Content, m.lastQuery)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	categoryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// highlightBestSentence emphasises the sentence sharing the most content
// words with query.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	q := make(map[string]struct{})
	for _, t := range textutil.ContentTokens(query) {
		q[t] = struct{}{}
	}
	best := bestSentence(sentences, q)
	out := make([]string, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if i == best {
			s = highlightStyle.Render(s)
		}
		out[i] = s
	}
	return strings.Join(out, " ")
}

// bestSentence returns -1 when nothing overlaps the query.
func bestSentence(sentences []string, query map[string]struct{}) int {
	best, bestScore := -1, 0
	for i, s := range sentences {
		score := 0
		for t := range textutil.TokenSet(s) {
			if _, ok := query[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
