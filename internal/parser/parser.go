// Package parser extracts frontmatter, links, tags and note flags from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	inlineRe   = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Link types, matching the values stored by the index.
const (
	LinkWiki   = "wiki"
	LinkInline = "inline"
)

// TemplateDir is the top-level vault folder whose notes are templates.
const TemplateDir = "templates"

// Link is one reference found in a note body.
type Link struct {
	// Raw is the reference as written, without alias or heading.
	Raw string
	// Target is the vault-relative path Raw resolves to; empty when it
	// cannot be resolved inside the vault.
	Target string
	Type   string
	// Line is 1-based and counts frontmatter lines.
	Line int
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []Link
	Tags        []string
	Aliases     []string
	Title       string
	WordCount   int
	Starred     bool
	Template    bool
}

// Parse extracts frontmatter, body, links and tags from raw Markdown bytes.
// Link targets are left unresolved; use ParseFile when the note path is known.
func Parse(data []byte) (*Result, error) {
	fm, body, offset, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body, offset),
		Tags:        extractTags(body, fm),
		Aliases:     stringsField(fm, "aliases", "alias"),
		Title:       deriveTitle(fm, body),
		WordCount:   len(strings.Fields(body)),
		Starred:     boolField(fm, "starred", "is_starred"),
		Template:    boolField(fm, "template", "is_template"),
	}, nil
}

// ParseFile parses the note stored at the vault-relative path p, resolving
// link targets against it. Notes under TemplateDir are templates.
func ParseFile(p string, data []byte) (*Result, error) {
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p = strings.ReplaceAll(p, `\`, "/")
	for i := range r.Links {
		r.Links[i].Target = Resolve(p, r.Links[i])
	}
	if strings.HasPrefix(p, TemplateDir+"/") {
		r.Template = true
	}
	if r.Title == "" {
		r.Title = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	return r, nil
}

// Resolve returns the vault-relative note path l points to from source.
// Wikilinks are vault-rooted; inline links are relative to the source folder.
func Resolve(source string, l Link) string {
	raw := strings.TrimSpace(l.Raw)
	if raw == "" {
		return ""
	}
	var target string
	switch l.Type {
	case LinkInline:
		if strings.HasPrefix(raw, "/") {
			target = path.Clean(strings.TrimPrefix(raw, "/"))
		} else {
			target = path.Join(path.Dir(source), raw)
		}
	default:
		target = path.Clean(strings.TrimPrefix(raw, "/"))
		if !strings.EqualFold(path.Ext(target), ".md") {
			target += ".md"
		}
	}
	if target == "." || target == ".." || strings.HasPrefix(target, "../") {
		return ""
	}
	return target
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
// offset is the number of lines preceding the body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), 0, nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), 0, nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole file is body.
		return nil, string(data), 0, nil
	}
	for k, v := range fm {
		fm[k] = stringKeys(v)
	}

	offset := bytes.Count(data[:len(data)-len(body)], []byte("\n"))
	return fm, body, offset, nil
}

// stringKeys rewrites nested mappings decoded with non-string keys
// (map[interface{}]interface{}) into map[string]interface{} so the
// frontmatter stays JSON encodable. Keys are formatted with fmt.Sprint.
func stringKeys(v interface{}) interface{} {
	switch m := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, item := range m {
			out[fmt.Sprint(k)] = stringKeys(item)
		}
		return out
	case map[string]interface{}:
		for k, item := range m {
			m[k] = stringKeys(item)
		}
		return m
	case []interface{}:
		for i, item := range m {
			m[i] = stringKeys(item)
		}
		return m
	default:
		return v
	}
}

// extractLinks returns every wikilink and inline .md link in order of
// appearance. Repeated references are kept, each with its own line.
func extractLinks(body string, offset int) []Link {
	var out []Link
	for i, line := range strings.Split(body, "\n") {
		lineNo := offset + i + 1
		for _, m := range wikilinkRe.FindAllStringSubmatch(line, -1) {
			raw := m[1]
			// [[Target|Alias]] and [[Target#Heading]] → Target.
			if j := strings.IndexAny(raw, "|#"); j >= 0 {
				raw = raw[:j]
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			out = append(out, Link{Raw: raw, Type: LinkWiki, Line: lineNo})
		}
		for _, m := range inlineRe.FindAllStringSubmatch(line, -1) {
			raw := m[2]
			if strings.Contains(raw, "://") || strings.HasPrefix(raw, "mailto:") {
				continue
			}
			if j := strings.Index(raw, "#"); j >= 0 {
				raw = raw[:j]
			}
			if dec, err := url.PathUnescape(raw); err == nil {
				raw = dec
			}
			if !strings.EqualFold(path.Ext(raw), ".md") {
				continue
			}
			out = append(out, Link{Raw: raw, Type: LinkInline, Line: lineNo})
		}
	}
	return out
}

// extractTags collects #tags from body and from the frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range stringsField(fm, "tags", "tag") {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// stringsField reads the first present key as a list. A YAML list yields its
// string items; a scalar string is split on commas.
func stringsField(fm map[string]interface{}, keys ...string) []string {
	for _, k := range keys {
		raw, ok := fm[k]
		if !ok {
			continue
		}
		var out []string
		switch v := raw.(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func boolField(fm map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if b, ok := fm[k].(bool); ok {
			return b
		}
	}
	return false
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
