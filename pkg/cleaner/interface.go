// Package cleaner strips everything that should not be read aloud (page numbers, copyright
// notices, headers) from extracted document text before it gets narrated.
package cleaner

import (
	"context"

	"github.com/petrzlen/narrator/pkg/models"
)

type Cleaner interface {
	Clean(ctx context.Context, text string) (string, error)
}

// ChatAgent streams the assistant reply to conversation into outputChan and closes it when done.
type ChatAgent interface {
	RunPrompt(ctx context.Context, model string, conversation *models.Conversation, outputChan chan<- string) error
}
