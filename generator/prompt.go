package generator

import (
	"fmt"
	"strings"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System string
	User   string
}

// OutlineInput feeds the planning prompt.
type OutlineInput struct {
	Topic      string
	Background string
	Guideline  string
	Tone       string
	MaxLength  int
}

// WriteInput feeds the writing prompt. Feedback is required when Rewrite is set.
type WriteInput struct {
	Topic     string
	Outline   Outline
	Guideline string
	Tone      string
	MaxLength int
	Attempt   int
	Rewrite   bool
	Feedback  string
}

// ReviewInput feeds the evaluation prompt.
type ReviewInput struct {
	Content   string
	Topic     string
	Guideline string
	Tone      string
}

// BuildOutlinePrompt 生成大纲提示词。
func BuildOutlinePrompt(in OutlineInput) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n\n", in.Topic))
	if in.Background != "" {
		sb.WriteString("CONTEXT/RESEARCH:\n")
		sb.WriteString(in.Background)
		sb.WriteString("\n\n")
	}
	if in.Guideline != "" {
		sb.WriteString("BRAND VOICE GUIDELINES:\n")
		sb.WriteString(in.Guideline)
		sb.WriteString("\n\nYou MUST consider these brand guidelines when planning the outline.\n\n")
	}
	sb.WriteString("REQUIREMENTS:\n")
	sb.WriteString(fmt.Sprintf("- Tone: %s\n", in.Tone))
	sb.WriteString(fmt.Sprintf("- Target length: %d characters\n", in.MaxLength))
	sb.WriteString("- Platform: LinkedIn (professional network)\n\n")
	sb.WriteString("Create a structured outline with:\n")
	sb.WriteString("1. Hook/Opening (1 sentence) - how to grab attention\n")
	sb.WriteString("2. Main Points (2-3 key ideas) - what to cover\n")
	sb.WriteString("3. Call-to-Action (1 sentence) - how to engage readers\n")
	sb.WriteString("4. Hashtags (3-5 relevant tags)\n\n")
	sb.WriteString("Format the outline with bullet points. Be specific about what each section should communicate.\n\nOUTLINE:")

	return Prompt{
		System: "You are a strategic content planner for LinkedIn posts. Your job is to create a detailed outline that a writer will follow.",
		User:   sb.String(),
	}
}

// BuildDraftPrompt 生成首稿或改写提示词。
func BuildDraftPrompt(in WriteInput) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n\n", in.Topic))
	sb.WriteString("OUTLINE TO FOLLOW:\n")
	sb.WriteString(in.Outline.Text)
	sb.WriteString("\n\n")
	if in.Guideline != "" {
		sb.WriteString("BRAND VOICE GUIDELINES (FOLLOW STRICTLY):\n")
		sb.WriteString(in.Guideline)
		sb.WriteString("\n\nYou MUST adhere to these brand guidelines precisely.\n\n")
	}
	if in.Rewrite {
		sb.WriteString("CRITIQUE FEEDBACK (ADDRESS ALL POINTS):\n")
		sb.WriteString(in.Feedback)
		sb.WriteString("\n\nThis is a rewrite. Produce a new version that addresses all the feedback above.\n\n")
	}
	sb.WriteString("REQUIREMENTS:\n")
	sb.WriteString(fmt.Sprintf("- Tone: %s\n", in.Tone))
	sb.WriteString(fmt.Sprintf("- Maximum length: %d characters\n", in.MaxLength))
	sb.WriteString("- Follow the outline structure precisely\n")
	sb.WriteString("- Include relevant emojis if appropriate\n")
	sb.WriteString("- End with the call-to-action and hashtags\n\n")

	system := "You are a professional LinkedIn content writer. Create an engaging LinkedIn post. Output only the post."
	if in.Rewrite {
		sb.WriteString("REWRITE THE POST:")
		system = "You are a professional LinkedIn content writer. Rewrite the post to address reviewer feedback. Output only the post."
	} else {
		sb.WriteString("WRITE THE POST:")
	}
	return Prompt{System: system, User: sb.String()}
}

// BuildReviewPrompt asks for three 1-10 sub-scores and feedback as JSON.
func BuildReviewPrompt(in ReviewInput, threshold float64) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ORIGINAL TOPIC: %s\n", in.Topic))
	sb.WriteString(fmt.Sprintf("EXPECTED TONE: %s\n\n", in.Tone))
	if in.Guideline != "" {
		sb.WriteString("BRAND VOICE GUIDELINES TO CHECK AGAINST:\n")
		sb.WriteString(in.Guideline)
		sb.WriteString("\n\nCheck whether the post strictly follows these brand guidelines.\n\n")
	}
	sb.WriteString("POST TO EVALUATE:\n---\n")
	sb.WriteString(in.Content)
	sb.WriteString("\n---\n\n")
	sb.WriteString("Score each criterion from 1 to 10:\n")
	sb.WriteString("1. BRAND ADHERENCE: voice, recommended phrases and hashtags, personality\n")
	sb.WriteString("2. QUALITY: engaging hook, clear structure, clear call-to-action\n")
	sb.WriteString("3. TONE & LENGTH: appropriate tone, suitable length for LinkedIn\n\n")
	sb.WriteString("Respond with JSON only:\n")
	sb.WriteString(`{
  "score": <overall score 1-10>,
  "brand_adherence": <score 1-10>,
  "quality": <score 1-10>,
  "tone_length": <score 1-10>,
  "feedback": "<specific, actionable feedback on what needs improvement>",
  "approved": <true/false>
}`)
	sb.WriteString(fmt.Sprintf("\n\nBe strict. A score of %.1f or more means the post is ready. Below that, feedback must be specific and actionable.\n\nEVALUATION:", threshold))

	return Prompt{
		System: "You are a critical content reviewer for LinkedIn posts. Evaluate rigorously.",
		User:   sb.String(),
	}
}
