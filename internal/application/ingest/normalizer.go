package ingest

import (
	"fmt"
	"strings"

	"github.com/notionwiki/backend/internal/infrastructure/notion"
)

// NormalizeBlocks 将块序列渲染为确定性的平文本
// 同一块序列永远得到同一文本，保证片段 ID 稳定
func NormalizeBlocks(blocks []notion.Block) string {
	lines := make([]string, 0, len(blocks))
	for i := range blocks {
		line := renderBlock(&blocks[i])
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderBlock 渲染单个块，无内容时返回空串
func renderBlock(block *notion.Block) string {
	text := joinRichText(block.Content.RichText)
	// 只含空白的富文本视同无内容
	if strings.TrimSpace(text) == "" {
		text = ""
	}

	switch block.Type {
	case "heading_1":
		return prefixed("# ", text)
	case "heading_2":
		return prefixed("## ", text)
	case "heading_3":
		return prefixed("### ", text)
	case "paragraph":
		return text
	case "bulleted_list_item":
		return prefixed("- ", text)
	case "numbered_list_item":
		return prefixed("1. ", text)
	case "to_do":
		marker := "- [ ] "
		if block.Content.Checked != nil && *block.Content.Checked {
			marker = "- [x] "
		}
		return prefixed(marker, text)
	case "quote":
		return prefixed("> ", text)
	case "callout":
		return prefixed(">> ", text)
	case "toggle":
		return prefixed("+ ", text)
	case "code":
		if text == "" {
			return ""
		}
		return fmt.Sprintf("```%s\n%s\n```", block.Content.Language, text)
	case "table_row":
		if len(block.Content.Cells) == 0 {
			return ""
		}
		cells := make([]string, len(block.Content.Cells))
		for i, cell := range block.Content.Cells {
			cells[i] = joinRichText(cell)
		}
		return strings.Join(cells, " | ")
	case "equation":
		if block.Content.Expression == "" {
			return ""
		}
		return "$" + block.Content.Expression + "$"
	case "divider":
		return "---"
	default:
		// 未知类型：有富文本用富文本，否则回退到链接
		if text != "" {
			return text
		}
		return blockLink(&block.Content)
	}
}

// prefixed 为非空文本加前缀
func prefixed(prefix, text string) string {
	if text == "" {
		return ""
	}
	return prefix + text
}

// joinRichText 拼接富文本的纯文本部分
func joinRichText(parts []notion.RichText) string {
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part.PlainText)
	}
	return sb.String()
}

// blockLink 提取媒体类块的链接
func blockLink(content *notion.BlockContent) string {
	if content.URL != "" {
		return content.URL
	}
	if content.External.URL != "" {
		return content.External.URL
	}
	if content.File.URL != "" {
		return content.File.URL
	}
	return ""
}
