package telegram

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reFence      = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)\\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`\\n]+?)`")
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`\*([^*\n]+?)\*`)
	reStrike     = regexp.MustCompile(`~~(.+?)~~`)
	reLink       = regexp.MustCompile(`\[([^\]]+?)\]\(([^)\s]+?)\)`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reBullet     = regexp.MustCompile(`(?m)^(\s*)[-+]\s`)
)

// markdownToHTML converts model markdown into the HTML subset Telegram accepts.
// An unclosed fence is left as text so half-streamed code still renders.
func markdownToHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	var (
		buf  strings.Builder
		last int
	)
	for _, loc := range reFence.FindAllStringSubmatchIndex(md, -1) {
		buf.WriteString(inlineToHTML(md[last:loc[0]]))
		lang := md[loc[2]:loc[3]]
		code := escapeHTML(strings.TrimRight(md[loc[4]:loc[5]], "\n"))
		if lang != "" {
			fmt.Fprintf(&buf, `<pre><code class="language-%s">%s</code></pre>`, lang, code)
		} else {
			buf.WriteString("<pre>" + code + "</pre>")
		}
		last = loc[1]
	}
	buf.WriteString(inlineToHTML(md[last:]))
	return strings.TrimSpace(buf.String())
}

func inlineToHTML(text string) string {
	if text == "" {
		return ""
	}
	// inline code is swapped out first so its contents are not formatted
	var spans []string
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		spans = append(spans, reInlineCode.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00%d\x00", len(spans)-1)
	})
	text = escapeHTML(text)
	text = reBold.ReplaceAllString(text, "<b>$1</b>")
	text = reStrike.ReplaceAllString(text, "<s>$1</s>")
	text = reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reHeading.ReplaceAllString(text, "<b>$1</b>")
	text = reBullet.ReplaceAllString(text, "${1}• ")
	text = reItalic.ReplaceAllString(text, "<i>$1</i>")
	text = quoteBlocks(text)
	for i, span := range spans {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), "<code>"+escapeHTML(span)+"</code>", 1)
	}
	return text
}

// quoteBlocks groups consecutive "> " lines. It runs after escaping, so it matches "&gt;".
func quoteBlocks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var quote []string
	flush := func() {
		if len(quote) > 0 {
			out = append(out, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
			quote = nil
		}
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "&gt;" || strings.HasPrefix(trimmed, "&gt; ") {
			quote = append(quote, strings.TrimPrefix(strings.TrimPrefix(trimmed, "&gt;"), " "))
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}

func escapeHTML(text string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(text)
}
