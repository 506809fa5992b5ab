package notion

import (
	"encoding/json"
	"strings"
)

// RichText 富文本片段
type RichText struct {
	PlainText string `json:"plain_text"`
	Href      string `json:"href,omitempty"`
}

// LinkTarget 链接目标
type LinkTarget struct {
	URL string `json:"url"`
}

// BlockContent 块的类型相关内容
// Notion 将内容放在以块类型命名的字段下，这里统一收敛为一个结构
type BlockContent struct {
	RichText   []RichText   `json:"rich_text"`
	Checked    *bool        `json:"checked"`
	Language   string       `json:"language"`
	Expression string       `json:"expression"`
	URL        string       `json:"url"`
	Cells      [][]RichText `json:"cells"`
	External   LinkTarget   `json:"external"`
	File       LinkTarget   `json:"file"`
}

// Block 页面内容块
type Block struct {
	ID          string
	Type        string
	HasChildren bool
	Content     BlockContent
}

// UnmarshalJSON 解码块信封，并将 type 对应字段下的内容提取到 Content
func (b *Block) UnmarshalJSON(data []byte) error {
	var envelope struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	b.ID = envelope.ID
	b.Type = envelope.Type
	b.HasChildren = envelope.HasChildren

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if payload, ok := fields[b.Type]; ok {
		if err := json.Unmarshal(payload, &b.Content); err != nil {
			return err
		}
	}
	return nil
}

// PageProperty 页面属性，这里只关心标题类型
type PageProperty struct {
	Type  string     `json:"type"`
	Title []RichText `json:"title"`
}

// Page Notion 页面
type Page struct {
	ID             string                  `json:"id"`
	URL            string                  `json:"url"`
	Archived       bool                    `json:"archived"`
	InTrash        bool                    `json:"in_trash"`
	LastEditedTime string                  `json:"last_edited_time"`
	Properties     map[string]PageProperty `json:"properties"`
}

// PlainTitle 提取页面标题，没有标题属性时返回 Untitled
func (p *Page) PlainTitle() string {
	for _, prop := range p.Properties {
		if prop.Type != "title" {
			continue
		}
		var sb strings.Builder
		for _, rt := range prop.Title {
			sb.WriteString(rt.PlainText)
		}
		if title := sb.String(); title != "" {
			return title
		}
	}
	return "Untitled"
}

// Removed 检查页面是否已被移除（归档或进回收站）
func (p *Page) Removed() bool {
	return p.Archived || p.InTrash
}

// User Notion 用户（/users/me 返回的 bot 用户）
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Bot  struct {
		WorkspaceName string `json:"workspace_name"`
	} `json:"bot"`
}

// SearchResult 工作区搜索结果中的一项
type SearchResult struct {
	ID             string `json:"id"`
	Object         string `json:"object"` // page / data_source
	URL            string `json:"url"`
	LastEditedTime string `json:"last_edited_time"`
	Title          string `json:"-"`
}
