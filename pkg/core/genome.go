package core

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind identifies the payload type of a content part.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartVideo PartKind = "video"
)

// ContentPart is one typed element of a multimodal message payload.
type ContentPart struct {
	Kind     PartKind               `json:"kind"`
	Text     string                 `json:"text,omitempty"`
	Data     []byte                 `json:"-"`
	MimeType string                 `json:"mime_type,omitempty"`
	URL      string                 `json:"url,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// NewImagePart creates an image content part.
func NewImagePart(data []byte, mimeType string) ContentPart {
	return ContentPart{Kind: PartImage, Data: data, MimeType: mimeType}
}

// NewVideoPart creates a video content part.
func NewVideoPart(url, mimeType string) ContentPart {
	return ContentPart{Kind: PartVideo, URL: url, MimeType: mimeType}
}

// String returns a short representation of the content part.
func (p ContentPart) String() string {
	switch p.Kind {
	case PartText:
		return p.Text
	case PartImage:
		return fmt.Sprintf("[Image: %s, %d bytes]", p.MimeType, len(p.Data))
	case PartVideo:
		return fmt.Sprintf("[Video: %s, %s]", p.MimeType, p.URL)
	default:
		return fmt.Sprintf("[Unknown content kind: %s]", p.Kind)
	}
}

// Message is one chat turn. Content holds plain text; a non-empty Parts slice
// means the message carries an ordered multimodal payload instead.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// NewTextMessage creates a plain-text message.
func NewTextMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// Text returns the textual content of the message. For multimodal messages the
// text parts are joined in order with single spaces.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// WithText returns a copy of the message carrying the given text. Non-text
// parts are kept unchanged in their original order; the text lands where the
// first text part sat (or replaces Content for plain-text messages).
func (m Message) WithText(text string) Message {
	if len(m.Parts) == 0 {
		return Message{Role: m.Role, Content: text}
	}

	parts := make([]ContentPart, 0, len(m.Parts))
	placed := false
	for _, p := range m.Parts {
		if p.Kind == PartText {
			if !placed {
				parts = append(parts, NewTextPart(text))
				placed = true
			}
			continue
		}
		parts = append(parts, p)
	}
	if !placed {
		parts = append(parts, NewTextPart(text))
	}
	return Message{Role: m.Role, Parts: parts}
}

// Clone deep-copies the message including binary part data.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Content: m.Content}
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		for i, p := range m.Parts {
			cp := p
			if p.Data != nil {
				cp.Data = append([]byte(nil), p.Data...)
			}
			if p.Metadata != nil {
				cp.Metadata = make(map[string]interface{}, len(p.Metadata))
				for k, v := range p.Metadata {
					cp.Metadata[k] = v
				}
			}
			out.Parts[i] = cp
		}
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Genome is one candidate under genetic search: a mapping from prompt name to
// its ordered message list. Metadata is a side channel (tool descriptions,
// lineage) that travels with the genome through genetic operations but is not
// part of the genome proper. Operators must not reorder or drop messages,
// only mutate their content.
type Genome struct {
	Prompts  map[string][]Message   `json:"prompts"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewGenome creates a genome from a prompt-name to message-list mapping.
func NewGenome(prompts map[string][]Message) *Genome {
	if prompts == nil {
		prompts = make(map[string][]Message)
	}
	return &Genome{Prompts: prompts, Metadata: make(map[string]interface{})}
}

// SingleGenome creates a genome holding one named prompt.
func SingleGenome(name string, msgs []Message) *Genome {
	return NewGenome(map[string][]Message{name: msgs})
}

// Clone deep-copies the genome. Metadata values are copied by reference.
func (g *Genome) Clone() *Genome {
	out := &Genome{
		Prompts:  make(map[string][]Message, len(g.Prompts)),
		Metadata: make(map[string]interface{}, len(g.Metadata)),
	}
	for name, msgs := range g.Prompts {
		out.Prompts[name] = CloneMessages(msgs)
	}
	for k, v := range g.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// PromptNames returns the genome's prompt names in sorted order, so iteration
// is deterministic across runs.
func (g *Genome) PromptNames() []string {
	names := make([]string, 0, len(g.Prompts))
	for name := range g.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeMetadata unions two metadata maps; values from a take precedence on
// key collision.
func MergeMetadata(a, b map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(a)+len(b))
	for k, v := range b {
		merged[k] = v
	}
	for k, v := range a {
		merged[k] = v
	}
	return merged
}
