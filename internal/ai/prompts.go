package ai

import (
	"encoding/json"
	"sort"
	"strings"
)

const pmSystemPrompt = `You are an experienced project manager. Your task is to analyze the provided content (from documents, app reviews, or other sources) and produce a concise list of actionable insights.

Rules:
- Each insight should be one or two clear sentences.
- Focus on: risks, opportunities, user pain points, feature requests, quality issues, and actionable recommendations.
- Return ONLY a valid JSON object with exactly this shape: { "insights": string[] }
- No markdown, no code fences, no extra text, just the JSON.`

const analyzeInstruction = `Analyze the following content and return a JSON object with an "insights" array of strings.`

// MaxSourceChars caps the extracted text taken from a single document.
const MaxSourceChars = 120000

var documentPrompts = map[string]string{
	"prd":           `Write a Product Requirements Document (PRD). Include: problem statement, goals, user personas, functional requirements, success metrics, and out-of-scope. Use the sources as evidence. Output in clear sections with headers.`,
	"coding-rules":  `Create AI Coding Rules & Standards for the project. Include: code style, naming conventions, file structure, testing expectations, and any framework-specific rules. Base recommendations on the types of sources (e.g. app reviews, docs) where relevant.`,
	"api-docs":      `Generate API Documentation structure and sample content. Include: overview, authentication, endpoints with request/response examples, and error codes. Infer plausible API surface from the sources.`,
	"accessibility": `Write an Accessibility Compliance checklist and recommendations. Include: WCAG alignment, keyboard/screen reader support, contrast and focus states, and testing steps. Reference the sources for product context.`,
	"architecture":  `Create an App Architecture Plan. Include: high-level diagram description, core modules, data flow, tech stack suggestions, and deployment approach. Use the sources to infer product scope.`,
	"bug-fix":       `Produce a Bug Investigation & Fix Plan. Include: how to reproduce, likely root causes, step-by-step fix plan, testing steps, and prevention. Use the sources as context for the product.`,
	"competitive":   `Write a Competitive Analysis Report. Include: competitor overview, feature comparison, strengths/weaknesses, and recommendations. Use the sources to ground the analysis.`,
	"journey-map":   `Create a Customer Journey Map. Include: stages (awareness, consideration, use, support), touchpoints, pain points, and opportunities. Base it on the described sources (e.g. reviews, interviews).`,
	"db-schema":     `Propose a Database Schema Design. Include: main entities, relationships, key tables and columns, and indexing notes. Infer domain from the sources.`,
	"feature-spec":  `Write a Feature Implementation Spec. Include: scope, acceptance criteria, technical approach, and rough task breakdown. Use the sources to define the feature.`,
	"gtm":           `Create a Go-to-Market Plan. Include: target audience, positioning, channels, launch phases, and success metrics. Use the sources for product and market context.`,
}

// DocumentTypes lists the studio document types in stable order.
func DocumentTypes() []string {
	types := make([]string, 0, len(documentPrompts))
	for key := range documentPrompts {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

func KnownDocumentType(docType string) bool {
	_, ok := documentPrompts[docType]
	return ok
}

// SourceText is one selected source as fed into analysis.
type SourceText struct {
	Name       string
	Kind       string
	URL        string
	FileBacked bool
	Text       string
}

// SourceRef describes a selected source without its content.
type SourceRef struct {
	Name string
	Kind string
	Meta json.RawMessage
}

func AnalyzeContext(sources []SourceText) string {
	parts := make([]string, 0, len(sources))
	for _, source := range sources {
		switch {
		case source.Kind == "reviews" && source.URL != "":
			parts = append(parts, "[App reviews source: "+source.Name+"]\nURL: "+source.URL+
				"\n(Use this context: app store reviews from the above URL. Provide insights a project manager would derive from typical app store feedback.)")
		case source.FileBacked && source.Text != "":
			parts = append(parts, "["+source.Name+"]\n"+truncateRunes(source.Text, MaxSourceChars))
		case source.FileBacked:
			parts = append(parts, "["+source.Name+"]\n(No text could be extracted from this file.)")
		default:
			parts = append(parts, "["+source.Name+"]\n(No content available for this source.)")
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func ChatContext(sources []SourceRef) string {
	if len(sources) == 0 {
		return "No specific sources selected."
	}
	lines := make([]string, 0, len(sources))
	for _, source := range sources {
		lines = append(lines, "- "+source.Name+" ("+source.Kind+")")
	}
	return "The user has selected the following sources for this conversation:\n" + strings.Join(lines, "\n") +
		"\n\nPlease use this context to answer questions accurately. If the user asks for details about these sources, use your knowledge as a product manager to provide insights based on their types and names."
}

func StudioContext(sources []SourceRef) string {
	if len(sources) == 0 {
		return "No sources selected."
	}
	lines := make([]string, 0, len(sources))
	for _, source := range sources {
		line := "- " + source.Name + " [" + source.Kind + "]"
		if len(source.Meta) > 0 && string(source.Meta) != "null" {
			line += " (meta: " + string(source.Meta) + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func studioPrompt(sourceContext, instruction string) string {
	return "You are a product and engineering assistant. The user has selected these real sources:\n\n" +
		sourceContext + "\n\nTask: " + instruction +
		"\n\nGenerate the full document. Use markdown for structure (headers, lists, code blocks where appropriate). " +
		`Do not include meta-commentary like "here is the document"; just output the document.`
}

func truncateRunes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
