package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

const analysisPrompt = `You are an expert clinical psychologist specializing in Psychodynamic and Emotionally Focused Therapy (EFT).
Your task is to analyze the following therapy session transcript to uncover the subtext and latent emotions.

Analysis Goals:
1. Role Identification: Identify 'Therapist' vs 'Patient' based on inquiry patterns vs disclosure patterns.
2. Deep Psychoanalysis: For EACH utterance, identify:
   - Explicit Topic: What is said.
   - Latent Emotion: The felt sense or underlying feeling (e.g., "Anxious Vulnerability" instead of just "Sad").
   - Subtext: The unspoken meaning, defense mechanisms, or attachment needs.
3. Clinical Recommendations: Provide actionable interventions for the therapist.

Constraints:
- Output MUST be valid, parseable JSON.
- Do NOT use markdown code blocks. Just the raw JSON object.

Output JSON Structure:
{
    "participants": {"Speaker A": "Role", "Speaker B": "Role"},
    "analysis": [
        {"speaker": "A", "text": "...", "topic": "...", "emotion": "...", "subtext": "..."}
    ],
    "clinical_recommendations": "..."
}`

// Analyze возвращает психологический анализ транскрипта в виде JSON.
// Результат не кэшируется, кэш на стороне вызывающего.
func (c *Client) Analyze(ctx context.Context, transcript json.RawMessage) (json.RawMessage, error) {
	c.logger.Info("running psychological analysis", "transcript_bytes", len(transcript))

	out, err := c.complete(ctx, analysisPrompt, "Analyze this transcript: "+string(transcript))
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}
	return out, nil
}
