package insights

import (
	"fmt"
	"strings"

	"github.com/sells-group/contractor-intel/internal/model"
)

// maxDescriptionChars is the truncation limit for profile descriptions sent
// to the model.
const maxDescriptionChars = 500

// generatorSystemPrompt primes the generation model.
const generatorSystemPrompt = `You are a B2B sales intelligence analyst helping roofing material distributors identify promising contractor leads. Generate concise, actionable, personalized insights based on contractor data.

Respond with ONLY valid JSON, no other text:
{"insight": "2-3 sentence sales insight", "talking_points": ["point 1", "point 2"]}`

// judgeSystemPrompt primes the evaluation model.
const judgeSystemPrompt = `You are an expert evaluator of B2B sales intelligence content.
Your job is to assess the quality of AI-generated sales insights for roofing material distributors.
You must return ONLY valid JSON with numeric scores and brief feedback.`

// contractorContext formats the contractor fields shared by every prompt.
func contractorContext(c *model.Contractor) string {
	rating := "N/A"
	if c.Rating != nil {
		rating = fmt.Sprintf("%.1f", *c.Rating)
	}
	reviews := 0
	if c.Reviews != nil {
		reviews = *c.Reviews
	}

	certs := "None listed"
	if len(c.Certifications) > 0 {
		certs = strings.Join(c.Certifications, ", ")
	}

	desc := "No description provided"
	if c.Description != nil && *c.Description != "" {
		desc = *c.Description
		if len(desc) > maxDescriptionChars {
			desc = desc[:maxDescriptionChars] + "..."
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contractor: %s\n", c.Name)
	fmt.Fprintf(&b, "Location: %s\n", c.Location)
	fmt.Fprintf(&b, "Rating: %s stars (%d reviews)\n", rating, reviews)
	fmt.Fprintf(&b, "Certifications: %s\n", certs)
	fmt.Fprintf(&b, "Description: %s", desc)
	return b.String()
}

// buildGeneratePrompt constructs the user message for first-pass generation.
func buildGeneratePrompt(c *model.Contractor) string {
	return fmt.Sprintf(`Generate a brief sales insight (2-3 sentences) for this roofing contractor:

%s

Focus on:
- Their reputation and market standing
- Quality indicators (rating, certifications, experience)
- Potential as a B2B customer for roofing materials
- Any unique strengths or specializations

Keep it professional and concise.`, contractorContext(c))
}

// buildRegeneratePrompt constructs the user message for a targeted
// improvement pass.
func buildRegeneratePrompt(c *model.Contractor, oldInsight, feedback, guidance string) string {
	return fmt.Sprintf(`The previous sales insight for this contractor scored poorly. Generate an IMPROVED version.

CONTRACTOR INFO:
%s

PREVIOUS INSIGHT (LOW QUALITY):
%s

EVALUATION FEEDBACK:
%s

IMPROVEMENT AREAS:
You need to %s.

REQUIREMENTS:
1. Write 2-3 sentences focused on B2B sales for roofing material distributors
2. Reference specific contractor strengths (rating, certifications, experience)
3. Identify what materials they likely need (asphalt shingles, metal, flat roof systems, etc.)
4. Suggest concrete next steps for sales engagement
5. Be personalized to THIS contractor - avoid generic language
6. Keep it professional, concise, and scannable

Generate the IMPROVED insight now:`, contractorContext(c), oldInsight, feedback, guidance)
}

// buildJudgePrompt constructs the user message for rubric evaluation.
func buildJudgePrompt(c *model.Contractor, insight string) string {
	return fmt.Sprintf(`Evaluate this AI-generated sales insight on a scale of 1-5 for each dimension.

CONTRACTOR DATA:
%s

GENERATED INSIGHT:
%s

EVALUATION CRITERIA:

1. **Accuracy & Relevance (1-5)**
   - Does it use correct contractor data (name, rating, certifications)?
   - Is all information factually accurate?
   - Is it relevant to B2B roofing materials sales?

2. **Actionability (1-5)**
   - Does it provide clear next steps for sales team?
   - Does it identify specific materials/services the contractor might need?
   - Does it suggest concrete engagement approaches?

3. **Personalization (1-5)**
   - Is it tailored to this contractor's specialization?
   - Does it reference unique strengths (rating, experience, certifications)?
   - Does it avoid generic template language?

4. **Conciseness (1-5)**
   - Is it appropriately brief (under 200 words)?
   - Does it avoid fluff and repetition?
   - Is it scannable for busy salespeople?

Return your evaluation as JSON with this exact structure:
{
    "accuracy": <score 1-5>,
    "actionability": <score 1-5>,
    "personalization": <score 1-5>,
    "conciseness": <score 1-5>,
    "feedback": "<1-2 sentence summary of strengths and weaknesses>"
}`, contractorContext(c), insight)
}

// extractJSON pulls the outermost JSON object out of a model response that
// may carry surrounding prose or code fences.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
