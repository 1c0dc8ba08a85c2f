package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mdParser = goldmark.New().Parser()

// stripMarkdown renders markdown as plain text: markup and HTML go, visible
// text stays. Code blocks keep their contents verbatim. Blocks are separated
// by a blank line and tight list items by a newline.
func stripMarkdown(src string) string {
	source := []byte(strings.ReplaceAll(src, "\r\n", "\n"))
	doc := mdParser.Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.TextBlock:
				endLines(&sb, 1)
			case *ast.List:
				if _, nested := n.Parent().(*ast.ListItem); nested {
					endLines(&sb, 1)
				} else {
					endLines(&sb, 2)
				}
			case *ast.Paragraph, *ast.Heading, *ast.Blockquote, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.ThematicBreak:
				endLines(&sb, 2)
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// endLines pads sb to end with at least n newlines, unless it is empty.
func endLines(sb *strings.Builder, n int) {
	s := sb.String()
	if s == "" {
		return
	}
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		sb.WriteByte('\n')
	}
}
