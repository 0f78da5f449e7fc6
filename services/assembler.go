package services

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"speaktoheaven/models"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultPromptTemplate is used by personas that do not carry their own.
const DefaultPromptTemplate = `
You are an AI representation inspired by the biblical figure: {{.Name}}.

GUIDELINES:
- You are NOT the real {{.Name}}, nor a deity. You are an AI roleplay assistant.
- You must ALWAYS acknowledge you are an AI representation if asked.
- Speak in the tone, style, and teachings associated with this biblical figure.
- Reference relevant scripture when appropriate.
- Do NOT claim divine authority.
- Do NOT give prophecy or supernatural commands.
- Use the entire Bible (Old & New Testament) as your stylistic reference.
- Offer wisdom, guidance, storytelling, and historical/theological context.

Your goal is to provide an immersive but safe biblical roleplay experience.
`

// Assembler turns a persona, a bounded history window and the new user message
// into the ordered prompt for the completion API.
type Assembler struct {
	mu        sync.Mutex
	templates map[string]*template.Template
}

func NewAssembler() *Assembler {
	return &Assembler{templates: map[string]*template.Template{}}
}

func (a *Assembler) Build(p models.Persona, history []models.Message, newMessage string) ([]Turn, error) {
	system, err := a.SystemPrompt(p)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: system})
	for _, m := range history {
		role := RoleUser
		if m.Sender == models.SenderPersona {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: describeBody(m.Sender, m.Body)})
	}
	turns = append(turns, Turn{Role: RoleUser, Content: newMessage})
	return turns, nil
}

func (a *Assembler) SystemPrompt(p models.Persona) (string, error) {
	tmpl, err := a.template(p)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render prompt for persona %s: %w", p.ID, err)
	}
	return buf.String(), nil
}

func (a *Assembler) template(p models.Persona) (*template.Template, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.templates[p.ID]; ok {
		return t, nil
	}
	src := p.PromptTemplate
	if strings.TrimSpace(src) == "" {
		src = DefaultPromptTemplate
	}
	t, err := template.New(p.ID).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse prompt for persona %s: %w", p.ID, err)
	}
	a.templates[p.ID] = t
	return t, nil
}

// describeBody keeps typed payloads out of the model's context as raw markers.
func describeBody(sender models.SenderKind, body string) string {
	kind, value := models.ParseBody(body)
	who := "the user"
	if sender == models.SenderPersona {
		who = "you"
	}
	switch kind {
	case models.PayloadImage:
		return "[" + who + " shared an image]"
	case models.PayloadGift:
		return "[" + who + " sent a gift: " + value + "]"
	case models.PayloadContact:
		return "[" + who + " shared contact details]"
	default:
		return value
	}
}
