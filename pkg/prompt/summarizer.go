package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"selfiebot/internal/util"
	"selfiebot/pkg/ai"
	"selfiebot/pkg/domain"
)

var systemPrompts = map[domain.Mode]string{
	domain.ModeRealism: "You generate concise, realistic edit goals for a human selfie. Keep face identity.",
	domain.ModeStylize: "You generate concise, artistic style goals for a human selfie.",
	domain.ModeScene:   "You generate concise scene/effect goals while preserving the user face.",
}

var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Summarizer condenses a free-text edit request into a short instruction.
type Summarizer struct {
	gen       ai.TextGenerator
	templates map[domain.Mode]string
}

// NewSummarizer builds a Summarizer. gen may be nil, in which case the raw text is used.
// Templates, keyed by mode, wrap the condensed goal; see Render for placeholders.
func NewSummarizer(gen ai.TextGenerator, templates map[domain.Mode]string) *Summarizer {
	if templates == nil {
		templates = map[domain.Mode]string{}
	}
	return &Summarizer{gen: gen, templates: templates}
}

// Summarize returns the edit instruction for text. Generator failures fall back to the raw text.
func (s *Summarizer) Summarize(ctx context.Context, mode domain.Mode, text, choice string) string {
	text = strings.TrimSpace(text)
	goal := text
	if s.gen != nil {
		out, err := s.gen.GenerateText(ctx, systemPrompts[mode], userPrompt(mode, text, choice))
		switch {
		case err != nil:
			util.LoggerFromContext(ctx).Warn("summarizer failed, using raw text", "mode", mode.String(), "err", err)
		case strings.TrimSpace(out) != "":
			goal = strings.TrimSpace(out)
		}
	}
	if tpl, ok := s.templates[mode]; ok && strings.TrimSpace(tpl) != "" {
		return strings.TrimSpace(Render(tpl, map[string]string{
			"user_text": goal,
			"raw_text":  text,
			"category":  OptionLabel(mode, choice),
		}))
	}
	return goal
}

func userPrompt(mode domain.Mode, text, choice string) string {
	hint := ""
	if label := OptionLabel(mode, choice); label != "" {
		hint = fmt.Sprintf("Category: %s. ", label)
	}
	return fmt.Sprintf("%sUser wrote: %q. Reply with a short goal only.", hint, text)
}

// Render replaces {{name}} placeholders; unknown names become empty.
func Render(tpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(m)[1])
		return vars[key]
	})
}

// LoadTemplates reads realism.md, stylize.md and scene.md from dir. Missing files are skipped.
func LoadTemplates(dir string) (map[domain.Mode]string, error) {
	out := make(map[domain.Mode]string)
	if strings.TrimSpace(dir) == "" {
		return out, nil
	}
	for _, mode := range []domain.Mode{domain.ModeRealism, domain.ModeStylize, domain.ModeScene} {
		raw, err := os.ReadFile(filepath.Join(dir, mode.String()+".md"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s template: %w", mode, err)
		}
		out[mode] = string(raw)
	}
	return out, nil
}
