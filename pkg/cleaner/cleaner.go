package cleaner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MinCleanedChars guards against the model answering with an apology instead of the story.
const MinCleanedChars = 50

var (
	ErrInvalidResponse  = errors.New("model did not return a valid JSON array")
	ErrNoMeaningfulText = errors.New("no meaningful text content in the response")
)

var (
	leadingFence  = regexp.MustCompile("^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
)

const promptTemplate = `I have extracted text from a document that includes the story narrative and extraneous elements such as copyright notices, author names, and page numbers.

Clean and format the text as a JSON array of story chunks, suitable for direct conversion to an audiobook.

Instructions:
1. Keep ONLY the continuous story content. Drop copyright notices, author names, page numbers, headers, footers, citations, references and any other metadata.
2. Return a JSON array of objects shaped like {"chunkId": 1, "text": "..."}.
3. Each "text" field must contain at most %d characters, split at sentence boundaries.
4. Keep the entire narrative from beginning to end, do not summarize.

Here is the text to process:

%s

Output: (a JSON array of story chunks, nothing else)`

type storyChunk struct {
	ChunkID int    `json:"chunkId"`
	Text    string `json:"text"`
}

type llmCleaner struct {
	agent         ChatAgent
	model         string
	maxChunkChars int
}

func NewLLMCleaner(agent ChatAgent, model string, maxChunkChars int) Cleaner {
	if maxChunkChars <= 0 {
		maxChunkChars = 2000
	}
	return &llmCleaner{agent: agent, model: model, maxChunkChars: maxChunkChars}
}

func (c *llmCleaner) Clean(ctx context.Context, text string) (string, error) {
	conversation := models.NewConversationSimple(fmt.Sprintf(promptTemplate, c.maxChunkChars, text))

	outputChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		errChan <- c.agent.RunPrompt(ctx, c.model, &conversation, outputChan)
	}()

	var reply strings.Builder
	for content := range outputChan {
		reply.WriteString(content)
	}
	if err := <-errChan; err != nil {
		return "", errors.Wrap(err, "cleanup prompt failed")
	}
	conversation.Add("assistant", reply.String())
	conversation.DebugLog()

	cleaned, err := ParseChunks(reply.String())
	if err != nil {
		return "", err
	}
	log.Info().Int("input_length", utf8.RuneCountInString(text)).Int("cleaned_length", utf8.RuneCountInString(cleaned)).Msg("text cleaned")
	return cleaned, nil
}

// ParseChunks turns the model reply into plain text, one paragraph per story chunk.
func ParseChunks(reply string) (string, error) {
	body := strings.TrimSpace(reply)
	body = leadingFence.ReplaceAllString(body, "")
	body = trailingFence.ReplaceAllString(body, "")
	if body == "" {
		body = "[]"
	}

	var chunks []storyChunk
	if err := json.Unmarshal([]byte(body), &chunks); err != nil {
		return "", errors.Wrapf(ErrInvalidResponse, "%v", err)
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	cleaned := strings.Join(texts, "\n\n")
	if utf8.RuneCountInString(cleaned) < MinCleanedChars {
		return "", errors.Wrapf(ErrNoMeaningfulText, "only %d characters left", utf8.RuneCountInString(cleaned))
	}
	return cleaned, nil
}
