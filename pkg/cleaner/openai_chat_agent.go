package cleaner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/petrzlen/narrator/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

type openaiChatAgent struct {
	client *openai.Client
}

func NewOpenAIChatAgent(client *openai.Client) ChatAgent {
	return &openaiChatAgent{client: client}
}

func conversationToOpenAiMessages(conversation *models.Conversation) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(conversation.Messages))
	for i, message := range conversation.Messages {
		result[i].Role = message.Role
		result[i].Content = message.Content
	}
	return result
}

func (o *openaiChatAgent) RunPrompt(ctx context.Context, model string, conversation *models.Conversation, outputChan chan<- string) error {
	defer close(outputChan)
	if model == "" {
		model = DefaultModel
	}

	startTime := time.Now()
	lastDataReceivedPrintoutTime := time.Now()

	chatRequest := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    conversationToOpenAiMessages(conversation),
		Temperature: 0,
	}
	log.Info().Int("prompt_length", len(conversation.GetLastPrompt())).Str("model", chatRequest.Model).Float32("temperature", chatRequest.Temperature).Msg("executeChatRequest")

	completionStream, err := o.client.CreateChatCompletionStream(ctx, chatRequest)
	if err != nil {
		return fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer completionStream.Close()

	var debugChunkBuilder strings.Builder
	received := 0
	for {
		response, streamRecvErr := completionStream.Recv()

		for _, choice := range response.Choices {
			content := choice.Delta.Content
			select {
			case outputChan <- content:
			case <-ctx.Done():
				return ctx.Err()
			}
			received += len(content)
			debugChunkBuilder.WriteString(content)

			if time.Since(lastDataReceivedPrintoutTime) >= time.Second {
				lastDataReceivedPrintoutTime = time.Now()
				lastChunk := debugChunkBuilder.String()
				debugChunkBuilder.Reset()
				log.Debug().Float64("time_elapsed", time.Since(startTime).Seconds()).Str("last_content", lastChunk).Msgf("ChatCompletionStream Data Status")
			}
		}

		// We only handle the error at the end - since we can get io.EOF with the last token.
		if streamRecvErr != nil {
			if errors.Is(streamRecvErr, io.EOF) {
				break
			}
			return fmt.Errorf("error reading from chat stream: %w", streamRecvErr)
		}
	}

	log.Info().Int("received_length", received).Msgf("Full response received %.2f seconds after request", time.Since(startTime).Seconds())
	return nil
}
