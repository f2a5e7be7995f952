package notify

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	reFence      = regexp.MustCompile("(?s)```[^\n]*\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`\*(.+?)\*`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// FormatHTML renders a notice in the HTML subset Telegram accepts. Markdown
// in the generated response is converted; everything else is escaped.
func FormatHTML(n Notice) string {
	t := n.Ticket
	title := html.EscapeString(t.Title)
	var b strings.Builder
	switch n.Kind {
	case ResponseReady:
		fmt.Fprintf(&b, "<b>Automated response ready</b> for ticket <code>%s</code>: %s\n", t.ID, title)
		if t.AIResponse != nil {
			b.WriteString("\n")
			b.WriteString(markdownToHTML(*t.AIResponse))
		}
	case Resolved:
		fmt.Fprintf(&b, "<b>Resolved</b> ticket <code>%s</code>: %s", t.ID, title)
	default:
		fmt.Fprintf(&b, "Ticket <code>%s</code> (%s): %s", t.ID, t.Status, title)
	}
	return b.String()
}

// markdownToHTML converts fenced code, inline code, bold, italic and links.
// An unterminated fence is closed at the end of the text.
func markdownToHTML(md string) string {
	var out strings.Builder
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if i > 0 {
			out.WriteString("\n")
		}
		if strings.HasPrefix(line, "```") {
			if inFence {
				out.WriteString("</code></pre>")
			} else if lang := strings.TrimSpace(line[3:]); lang != "" {
				out.WriteString(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
			} else {
				out.WriteString("<pre><code>")
			}
			inFence = !inFence
			continue
		}
		if inFence {
			out.WriteString(html.EscapeString(line))
			continue
		}
		out.WriteString(inlineHTML(line))
	}
	if inFence {
		out.WriteString("</code></pre>")
	}
	return out.String()
}

func inlineHTML(line string) string {
	// Code spans are swapped for placeholders so emphasis inside them survives.
	var spans []string
	line = reInlineCode.ReplaceAllStringFunc(line, func(m string) string {
		spans = append(spans, "<code>"+html.EscapeString(m[1:len(m)-1])+"</code>")
		return fmt.Sprintf("\x00%d\x00", len(spans)-1)
	})

	line = html.EscapeString(line)
	line = reBold.ReplaceAllString(line, "<b>$1</b>")
	line = reItalic.ReplaceAllString(line, "<i>$1</i>")
	line = reLink.ReplaceAllString(line, `<a href="$2">$1</a>`)

	for i, s := range spans {
		line = strings.Replace(line, fmt.Sprintf("\x00%d\x00", i), s, 1)
	}
	return line
}

// StripMarkdown removes Markdown formatting. Links become "text (url)".
func StripMarkdown(md string) string {
	s := reFence.ReplaceAllString(md, "$1")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$1")
	s = reItalic.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1 ($2)")
	return strings.ReplaceAll(s, "__", "")
}
