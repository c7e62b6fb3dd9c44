package content

import (
	"fmt"

	"github.com/mgeist/codereel/internal/jobs"
)

// styleDescriptions expand a difficulty level into prompt guidance.
var styleDescriptions = map[jobs.Style]string{
	jobs.StyleBeginner:     "very simple, with detailed explanations of every concept",
	jobs.StyleIntermediate: "moderately complex, assuming familiarity with basic programming concepts",
	jobs.StyleAdvanced:     "complex, assuming deep knowledge of the language and programming patterns",
}

const promptTemplate = `You are an expert programming instructor creating video tutorial content.
Generate structured tutorial content that will be used to create an educational coding video.

Your response MUST be valid JSON matching this exact structure:
{
  "title": "A concise, descriptive title for the tutorial",
  "steps": [
    {
      "code": "The code snippet for this step (properly escaped for JSON)",
      "explanation": "A clear, spoken explanation of what this code does (2-3 sentences, suitable for text-to-speech narration)",
      "language": "The programming language"
    }
  ]
}

Guidelines:
- Create 3-6 logical steps that build upon each other
- Each code snippet should be complete and runnable when possible
- Explanations should be conversational and suitable for narration
- The difficulty level should be: %s
- Use %s for all code examples
- Make explanations engaging but concise (good for 10-20 seconds of narration each)
- Escape any special characters in code properly for JSON

Create a coding tutorial about: %s

Respond with ONLY valid JSON, no markdown code blocks or additional text.`

// buildPrompt assembles the full instruction sent to the AI CLI.
func buildPrompt(prompt, language string, style jobs.Style) string {
	styleDesc, ok := styleDescriptions[style]
	if !ok {
		styleDesc = styleDescriptions[jobs.StyleBeginner]
	}
	return fmt.Sprintf(promptTemplate, styleDesc, language, prompt)
}
