package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/Mindscope/internal/domain"
)

// MaxHistoryEmotions — сколько последних эмоций истории попадает в промпт.
const MaxHistoryEmotions = 50

const advisorPrompt = `You are the 'Super Advisor', an advanced psychological AI.

User History (Recent Emotions): %s

Task: Based on the user's current thought and their emotional history, categorize their current state into one of these 4 categories:
[%s]

Then, provide exactly 5 actionable, psychologically grounded advices.

Output JSON:
{
    "detected_category": "...",
    "advices": ["1...", "2...", "3...", "4...", "5..."]
}`

// RecentEmotions возвращает не больше MaxHistoryEmotions последних эмоций.
func RecentEmotions(emotions []string) []string {
	if len(emotions) > MaxHistoryEmotions {
		return emotions[len(emotions)-MaxHistoryEmotions:]
	}
	return emotions
}

// Advise относит запрос пользователя к одной из domain.AdviceCategories
// с учётом эмоциональной истории и возвращает советы.
func (c *Client) Advise(ctx context.Context, query string, emotions []string) (*domain.Advice, error) {
	recent := RecentEmotions(emotions)
	system := fmt.Sprintf(advisorPrompt,
		strings.Join(recent, ", "),
		strings.Join(domain.AdviceCategories, ", "),
	)

	c.logger.Info("advisor request", "history_emotions", len(recent))

	out, err := c.complete(ctx, system, query)
	if err != nil {
		return nil, fmt.Errorf("advise: %w", err)
	}

	var advice domain.Advice
	if err := json.Unmarshal(out, &advice); err != nil {
		return nil, fmt.Errorf("%w: advice: %v", ErrInvalidOutput, err)
	}
	return &advice, nil
}
