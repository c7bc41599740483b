package polish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxnote/voxnote/internal/storage/sqlite"
	"github.com/voxnote/voxnote/internal/websocket"
	"github.com/voxnote/voxnote/pkg/logger"
)

// Raw dictation comes out of the transcriber with whatever punctuation the
// model felt like. The polisher batches unpolished notes through a chat model
// to fix punctuation, casing and obvious transcription stumbles without
// changing what was said.

const systemPrompt = `You clean up dictated voice notes. For each note fix punctuation,
capitalization, sentence breaks and obvious speech-to-text errors. Never add,
remove or rephrase actual content. Respond with a JSON array of objects, each
{"id": "<note id>", "content": "<cleaned text>"}, one per input note, and
nothing else.`

// Config contains polisher configuration
type Config struct {
	Enabled         bool
	APIKey          string
	Model           string
	IntervalSeconds int
	BatchSize       int
	TimeoutSeconds  int
}

// Polisher runs the background post-processing loop over unpolished notes
type Polisher struct {
	ctx      context.Context
	cancel   context.CancelFunc
	storage  *sqlite.NoteStorage
	client   openai.Client
	wsServer *websocket.Server
	config   Config
	logger   *logger.Logger
	wg       sync.WaitGroup
}

// noteBatch is the shape notes are presented to the model in, and the shape
// results come back in
type noteBatch struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NewPolisher creates a new polisher
func NewPolisher(ctx context.Context, storage *sqlite.NoteStorage, wsServer *websocket.Server, config Config, log *logger.Logger) *Polisher {
	procCtx, procCancel := context.WithCancel(ctx)

	if config.IntervalSeconds <= 0 {
		config.IntervalSeconds = 30
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 60
	}

	return &Polisher{
		ctx:      procCtx,
		cancel:   procCancel,
		storage:  storage,
		client:   openai.NewClient(option.WithAPIKey(config.APIKey)),
		wsServer: wsServer,
		config:   config,
		logger:   log.Named("polish"),
	}
}

// Start starts the polishing loop
func (p *Polisher) Start() error {
	if !p.config.Enabled {
		p.logger.Info("Polishing is disabled, not starting")
		return nil
	}

	p.logger.Info("Starting polish loop",
		logger.Int("interval_seconds", p.config.IntervalSeconds),
		logger.Int("batch_size", p.config.BatchSize))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Duration(p.config.IntervalSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				p.logger.Info("Polish loop stopped")
				return
			case <-ticker.C:
				if err := p.processNextBatch(); err != nil {
					p.logger.Error("Error polishing batch", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop stops the polishing loop
func (p *Polisher) Stop() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

// processNextBatch polishes the next batch of unpolished notes
func (p *Polisher) processNextBatch() error {
	records, err := p.storage.GetUnpolishedNotes(p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get unpolished notes: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	p.logger.Debug("Polishing batch", logger.Int("count", len(records)))

	batch := make([]noteBatch, 0, len(records))
	for _, record := range records {
		batch = append(batch, noteBatch{ID: record.ID, Content: record.Content})
	}

	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal note batch: %w", err)
	}

	results, err := p.polishBatch(string(batchJSON))
	if err != nil {
		// Keep the original content but mark the notes polished so a broken
		// batch is not retried forever
		p.logger.Error("Failed to polish batch, keeping original content", logger.Error(err))
		for _, record := range records {
			if markErr := p.storage.MarkNotePolished(record.ID, record.Content); markErr != nil {
				p.logger.Error("Failed to mark note polished",
					logger.String("id", record.ID),
					logger.Error(markErr))
			}
		}
		return err
	}

	byID := make(map[string]string, len(results))
	for _, result := range results {
		byID[result.ID] = result.Content
	}

	for _, record := range records {
		content, ok := byID[record.ID]
		if !ok || content == "" {
			// The model skipped it; keep the original so it is not retried
			content = record.Content
		}

		if err := p.storage.MarkNotePolished(record.ID, content); err != nil {
			p.logger.Error("Failed to store polished note",
				logger.String("id", record.ID),
				logger.Error(err))
			continue
		}

		p.broadcastPolished(record.ID, content)
	}

	return nil
}

// polishBatch sends one batch to the chat model and parses the result
func (p *Polisher) polishBatch(batchJSON string) ([]noteBatch, error) {
	ctx, cancel := context.WithTimeout(p.ctx, time.Duration(p.config.TimeoutSeconds)*time.Second)
	defer cancel()

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Notes:\n" + batchJSON),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parsePolishResults(completion.Choices[0].Message.Content)
}

// parsePolishResults decodes the model's JSON array. Models wrap JSON in a
// markdown code fence often enough that tolerating one is worth it; a parse
// failure poison-pills the whole batch otherwise.
func parsePolishResults(content string) ([]noteBatch, error) {
	var results []noteBatch
	if err := json.Unmarshal([]byte(stripFence(content)), &results); err != nil {
		return nil, fmt.Errorf("failed to parse polish response: %w", err)
	}
	return results, nil
}

// stripFence removes a surrounding markdown code fence, with or without a
// language tag. Anything else passes through untouched.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// broadcastPolished notifies connected UI clients that a note changed
func (p *Polisher) broadcastPolished(id, content string) {
	if p.wsServer == nil {
		return
	}
	p.wsServer.Broadcast(&websocket.Message{
		Type: "note_polished",
		Data: map[string]interface{}{
			"id":      id,
			"content": content,
		},
	})
}
