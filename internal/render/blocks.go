package render

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockListItem
	blockCode
	blockQuote
	blockRule
)

type block struct {
	kind  blockKind
	level int // heading level, or list nesting depth
	text  string
	mark  string // list bullet or number
}

var parser = goldmark.New().Parser()

// parseBlocks flattens drafted markdown into renderable blocks.
func parseBlocks(src []byte) []block {
	doc := parser.Parse(text.NewReader(src))
	var out []block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		out = appendBlock(out, n, src, 0)
	}
	return out
}

func appendBlock(out []block, n ast.Node, src []byte, depth int) []block {
	switch node := n.(type) {
	case *ast.Heading:
		return append(out, block{kind: blockHeading, level: node.Level, text: inlineText(node, src)})
	case *ast.Paragraph, *ast.TextBlock:
		if t := inlineText(node, src); t != "" {
			return append(out, block{kind: blockParagraph, text: t})
		}
	case *ast.List:
		index := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			mark := "-"
			if node.IsOrdered() {
				mark = strconv.Itoa(index) + string(node.Marker)
				index++
			}
			out = appendListItem(out, item, src, depth, mark)
		}
	case *ast.FencedCodeBlock:
		return append(out, block{kind: blockCode, text: codeText(node.Lines(), src)})
	case *ast.CodeBlock:
		return append(out, block{kind: blockCode, text: codeText(node.Lines(), src)})
	case *ast.Blockquote:
		var parts []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t := inlineText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		return append(out, block{kind: blockQuote, text: strings.Join(parts, " ")})
	case *ast.ThematicBreak:
		return append(out, block{kind: blockRule})
	case *ast.HTMLBlock:
		return append(out, block{kind: blockParagraph, text: strings.TrimSpace(codeText(node.Lines(), src))})
	}
	return out
}

func appendListItem(out []block, item ast.Node, src []byte, depth int, mark string) []block {
	first := true
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if _, nested := c.(*ast.List); nested {
			out = appendBlock(out, c, src, depth+1)
			continue
		}
		t := inlineText(c, src)
		if t == "" {
			continue
		}
		b := block{kind: blockListItem, level: depth, text: t}
		if first {
			b.mark = mark
			first = false
		}
		out = append(out, b)
	}
	return out
}

// inlineText concatenates the text of n's inline descendants.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	// The walker never returns an error.
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.HardLineBreak() {
				b.WriteString("\n")
			} else if t.SoftLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func codeText(lines *text.Segments, src []byte) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimRight(b.String(), "\n")
}
