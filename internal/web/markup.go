package web

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce sync.Once
	markdownInst goldmark.Markdown
)

func markdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInst = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInst
}

// renderMarkdown converts a stage description to HTML. Raw HTML in the
// source is dropped by goldmark's default renderer; on failure the text is
// escaped instead.
func renderMarkdown(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdownParser().Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// highlightMakefile returns the Makefile as syntax-highlighted HTML with
// inline styles.
func highlightMakefile(src []byte) (template.HTML, error) {
	lexer := lexers.Get("make")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := lexer.Tokenise(nil, string(src))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	formatter := html.New(html.WithClasses(false), html.TabWidth(8))
	if err := formatter.Format(&buf, styles.Get("github"), it); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
