package summarize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bulletContract is the JSON shape requested from chunk, reduce and fast-path calls.
type bulletContract struct {
	Title       string   `json:"title"`
	Bullets     []string `json:"bullets"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
}

const bulletSchema = `{
  "type": "object",
  "required": ["bullets"],
  "properties": {
    "title": {"type": "string"},
    "bullets": {"type": "array", "items": {"type": "string"}},
    "category": {"type": "string"},
    "subcategory": {"type": "string"}
  }
}`

var (
	bulletSchemaCompiled = mustCompileSchema("bullets.json", bulletSchema)

	codeFenceStart = regexp.MustCompile("^\\s*```[^\\n]*\\n")
	codeFenceEnd   = regexp.MustCompile("\\n```\\s*$")
)

func mustCompileSchema(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return compiled
}

// parseBulletContract pulls the first JSON object out of a model response and
// validates it against the bullet schema.
func parseBulletContract(raw string) (bulletContract, error) {
	body := extractJSONObject(stripCodeFence(raw))
	if body == "" {
		return bulletContract{}, fmt.Errorf("no json object in response")
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return bulletContract{}, fmt.Errorf("parse bullet json: %w", err)
	}
	if err := bulletSchemaCompiled.Validate(generic); err != nil {
		return bulletContract{}, fmt.Errorf("bullet json does not match schema: %w", err)
	}

	var out bulletContract
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return bulletContract{}, fmt.Errorf("decode bullet json: %w", err)
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Category = strings.TrimSpace(out.Category)
	out.Subcategory = strings.TrimSpace(out.Subcategory)
	return out, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

func stripCodeFence(s string) string {
	s = codeFenceStart.ReplaceAllString(s, "")
	s = codeFenceEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// clipBullets keeps at most maxItems non-empty bullets, each cut to maxRunes
// runes with an ellipsis when truncated.
func clipBullets(bullets []string, maxItems, maxRunes int) []string {
	out := make([]string, 0, min(len(bullets), maxItems))
	for _, b := range bullets {
		if len(out) == maxItems {
			break
		}
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if utf8.RuneCountInString(b) > maxRunes {
			b = strings.TrimRight(string([]rune(b)[:maxRunes]), " \t") + "…"
		}
		out = append(out, b)
	}
	return out
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
