package platform

import (
	"context"
	"errors"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	LLMClient *openai.Client
)

func InitLLMClient() {
	LLMClient = openai.NewClient(
		option.WithBaseURL(os.Getenv("LLM_BASE_URL")),
		option.WithAPIKey(os.Getenv("LLM_API_KEY")),
	)
}

// ChatModel sends a single system+user exchange to the configured model and
// returns the raw completion text. It satisfies service.LLMClient.
type ChatModel struct {
	Model       string
	Temperature float64
}

func (m *ChatModel) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F([]openai.ChatCompletionMessageParamUnion{}),
		Model:       openai.F(m.Model),
		Temperature: openai.F(m.Temperature),
	}
	for _, message := range []struct {
		role    openai.ChatCompletionMessageParamRole
		content string
	}{
		{openai.ChatCompletionMessageParamRoleSystem, system},
		{openai.ChatCompletionMessageParamRoleUser, user},
	} {
		var content any = message.content
		params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
			Role:    openai.F(message.role),
			Content: openai.F(content),
		})
	}

	completion, err := LLMClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}
