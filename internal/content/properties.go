package content

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

func joinPlainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}

// blockText returns the visible text of a block. Blocks without rich text,
// such as dividers or child databases, yield "".
func blockText(b notionapi.Block) string {
	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		return joinPlainText(v.Paragraph.RichText)
	case *notionapi.Heading1Block:
		return joinPlainText(v.Heading1.RichText)
	case *notionapi.Heading2Block:
		return joinPlainText(v.Heading2.RichText)
	case *notionapi.Heading3Block:
		return joinPlainText(v.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		return joinPlainText(v.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		return joinPlainText(v.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		return joinPlainText(v.ToDo.RichText)
	case *notionapi.ToggleBlock:
		return joinPlainText(v.Toggle.RichText)
	case *notionapi.QuoteBlock:
		return joinPlainText(v.Quote.RichText)
	case *notionapi.CalloutBlock:
		return joinPlainText(v.Callout.RichText)
	case *notionapi.CodeBlock:
		return joinPlainText(v.Code.RichText)
	default:
		return ""
	}
}

// propertyValue renders a property as display text; empty means "omit".
func propertyValue(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return joinPlainText(v.Title)
	case *notionapi.RichTextProperty:
		return joinPlainText(v.RichText)
	case *notionapi.NumberProperty:
		if v.Number == 0 {
			return ""
		}
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(v.MultiSelect))
		for _, o := range v.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.DateProperty:
		if v.Date == nil || v.Date.Start == nil {
			return ""
		}
		if v.Date.End != nil {
			return formatDate(v.Date.Start) + " to " + formatDate(v.Date.End)
		}
		return formatDate(v.Date.Start)
	case *notionapi.CheckboxProperty:
		if v.Checkbox {
			return "Yes"
		}
		return "No"
	case *notionapi.URLProperty:
		return v.URL
	case *notionapi.EmailProperty:
		return v.Email
	case *notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	default:
		return ""
	}
}

// formatDate prints all-day dates without a clock.
func formatDate(d *notionapi.Date) string {
	t := time.Time(*d)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// pageTitle returns the text of the page's title property.
func pageTitle(p notionapi.Page) string {
	for _, prop := range p.Properties {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			return strings.TrimSpace(joinPlainText(title.Title))
		}
	}
	return ""
}

// propertyLines renders non-title properties as "Name: value" lines sorted by
// name, so the body is stable across fetches.
func propertyLines(p notionapi.Page) string {
	names := make([]string, 0, len(p.Properties))
	for name := range p.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		prop := p.Properties[name]
		if _, ok := prop.(*notionapi.TitleProperty); ok {
			continue
		}
		if v := propertyValue(prop); v != "" {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// normalize flattens a page and the text of its blocks into a Record.
func normalize(p notionapi.Page, blocks []string) Record {
	props := propertyLines(p)

	var text strings.Builder
	for _, bl := range blocks {
		if bl != "" {
			text.WriteString(bl)
			text.WriteString("\n")
		}
	}
	joined := text.String()

	body := props
	if props != "" && joined != "" {
		body += "\n"
	}
	body += joined

	return Record{
		ID:    string(p.ID),
		Title: pageTitle(p),
		Body:  strings.TrimSpace(body),
	}
}
