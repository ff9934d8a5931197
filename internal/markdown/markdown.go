// Package markdown turns the markdown produced by the parse API into plain
// text and heading outlines.
package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var (
	cellEnd  = regexp.MustCompile(`(?i)</t[dh]\s*>`)
	lineEnd  = regexp.MustCompile(`(?i)</tr\s*>|<br\s*/?>|</p\s*>|</li\s*>|</h[1-6]\s*>`)
	anyTag   = regexp.MustCompile(`<[^>]*>`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// Heading is a markdown heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PlainText renders markdown as plain text: blocks end with a newline and
// table cells (markdown or HTML) are separated by tabs. Anchor tags and
// other inline HTML are dropped.
func PlainText(markdown string) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.HardLineBreak() {
					sb.WriteByte('\n')
				} else if node.SoftLineBreak() {
					sb.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			if entering {
				sb.WriteString(htmlText(blockSource(node, src)))
				sb.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				sb.WriteString(blockSource(node, src))
				sb.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *east.TableCell:
			if !entering && node.NextSibling() != nil {
				sb.WriteByte('\t')
			}
		case *east.TableHeader, *east.TableRow:
			if !entering {
				sb.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.ThematicBreak:
			if !entering {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return tidy(sb.String())
}

// Headings returns every heading in document order.
func Headings(markdown string) []Heading {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		out = append(out, Heading{Level: h.Level, Text: inlineText(h, src)})
		return ast.WalkSkipChildren, nil
	})
	return out
}

func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func blockSource(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	if hb, ok := n.(*ast.HTMLBlock); ok && hb.HasClosure() {
		sb.Write(hb.ClosureLine.Value(src))
	}
	return sb.String()
}

// htmlText strips tags from an HTML fragment, keeping table structure.
func htmlText(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = cellEnd.ReplaceAllString(s, "\t")
	s = lineEnd.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
