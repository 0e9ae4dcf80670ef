// Package assistant runs one chat turn: safety screening, knowledge base
// retrieval, and the model call. It is the only owner of the RAG manager
// once the application is running.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"mhassist/internal/domain"
	"mhassist/internal/history"
	"mhassist/internal/llm"
	"mhassist/internal/prompts"
	"mhassist/internal/safety"
	"mhassist/internal/service"
)

var ErrEmptyMessage = errors.New("message is empty")

// Reply is the outcome of one turn.
type Reply struct {
	SessionID      string   `json:"session_id"`
	Category       string   `json:"category"`
	Text           string   `json:"reply"`
	Crisis         bool     `json:"crisis"`
	CrisisKeywords []string `json:"crisis_keywords,omitempty"`
	OffTopic       bool     `json:"off_topic"`
	UsedContext    bool     `json:"used_context"`
}

type Options struct {
	// RAGEnabled turns retrieval on. With it off the manager is only used
	// for corpus management.
	RAGEnabled bool
	// MaxHistory bounds the previous turns sent to the model.
	MaxHistory int
}

// Assistant serialises every call into the RAG manager behind one mutex.
type Assistant struct {
	mu  sync.Mutex
	rag *service.RAGManager

	completer llm.Completer
	history   history.Store
	opts      Options
}

func New(rag *service.RAGManager, completer llm.Completer, store history.Store, opts Options) *Assistant {
	return &Assistant{rag: rag, completer: completer, history: store, opts: opts}
}

// Reply answers message within sessionID. Crisis messages are answered with
// the crisis protocol and never reach retrieval or the model. Model failures
// produce llm.Apology instead of an error.
func (a *Assistant) Reply(ctx context.Context, sessionID, category, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = history.NewSessionID()
	}
	category = prompts.Normalize(category)
	out := Reply{SessionID: sessionID, Category: category}
	entry := log.WithFields(log.Fields{"session": sessionID, "category": category})

	if crisis, keywords := safety.DetectCrisis(message); crisis {
		entry.WithField("keywords", keywords).Warn("crisis keywords detected")
		out.Crisis, out.CrisisKeywords = true, keywords
		out.Text = safety.CrisisResponse(keywords)
		return out, a.record(ctx, sessionID, message, out.Text)
	}
	if ok, warning := safety.CheckMessage(message); !ok {
		entry.Info("off-topic message")
		out.OffTopic, out.Text = true, warning
		return out, a.record(ctx, sessionID, message, out.Text)
	}

	ragContext := a.retrieve(message, category)
	out.UsedContext = ragContext != ""

	past, err := a.history.Messages(ctx, sessionID, a.opts.MaxHistory)
	if err != nil {
		return Reply{}, err
	}
	msgs := make([]llm.Message, 0, len(past)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: prompts.BuildSystemPrompt(category, ragContext)})
	msgs = append(msgs, past...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	text, err := a.completer.Complete(ctx, msgs)
	if err != nil {
		entry.WithError(err).Error("model call failed")
		text = llm.Apology
	}
	out.Text = text
	return out, a.record(ctx, sessionID, message, text)
}

// retrieve fetches knowledge base text for the turn. Retrieval problems are
// logged and the turn continues without it.
func (a *Assistant) retrieve(message, category string) string {
	if !a.opts.RAGEnabled || a.rag == nil {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rag.State() != service.StatePopulated {
		return ""
	}
	text, err := a.rag.GetContextForQuery(message, category, 0)
	if err != nil {
		log.WithError(err).Warn("knowledge base retrieval failed")
		return ""
	}
	return text
}

func (a *Assistant) record(ctx context.Context, sessionID, user, reply string) error {
	return a.history.Append(ctx, sessionID,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
}

func (a *Assistant) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	return a.history.Messages(ctx, sessionID, 0)
}

func (a *Assistant) EndSession(ctx context.Context, sessionID string) error {
	return a.history.Delete(ctx, sessionID)
}

// Search runs a knowledge base lookup with the configured search threshold.
// An uninitialized or empty index yields no results and no error; check
// Stats().State to tell them apart.
func (a *Assistant) Search(query string, k int, category string) ([]domain.QueryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.SearchRelevantContent(query, k, category, a.rag.Config().SearchThreshold)
}

// SearchWithin is Search with an explicit distance threshold.
func (a *Assistant) SearchWithin(query string, k int, category string, threshold float32) ([]domain.QueryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.SearchRelevantContent(query, k, category, threshold)
}

func (a *Assistant) Reindex() (service.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.IndexDocuments()
}

func (a *Assistant) AddText(text string, meta service.DocumentMeta) (service.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.AddDocumentFromText(text, meta)
}

func (a *Assistant) Stats() service.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.Stats()
}

func (a *Assistant) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rag.Clear()
}
