package llmprovider

import "strings"

// ExtractText returns the plain text of a message content field.
//
// Accepted shapes:
//   - string: returned unchanged
//   - []*Block, []Block: TextContent of every text block
//   - []ContentItem: Text of every text item
//   - []interface{} / []map[string]interface{}: "text" of every {"type": "text"} object
//     (the shape produced by decoding JSON), plus any of the typed blocks above
//
// Text pieces are concatenated in order without separators. Any other shape,
// or a sequence with no text blocks, yields "".
func ExtractText(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
	case []*Block:
		var sb strings.Builder
		for _, b := range c {
			sb.WriteString(blockText(b))
		}
		return sb.String()
	case []Block:
		var sb strings.Builder
		for i := range c {
			sb.WriteString(blockText(&c[i]))
		}
		return sb.String()
	case []ContentItem:
		var sb strings.Builder
		for _, item := range c {
			if item.Type == ContentTypeText {
				sb.WriteString(item.Text)
			}
		}
		return sb.String()
	case []map[string]interface{}:
		var sb strings.Builder
		for _, m := range c {
			sb.WriteString(mapText(m))
		}
		return sb.String()
	case []interface{}:
		var sb strings.Builder
		for _, elem := range c {
			switch e := elem.(type) {
			case map[string]interface{}:
				sb.WriteString(mapText(e))
			case *Block:
				sb.WriteString(blockText(e))
			case Block:
				sb.WriteString(blockText(&e))
			case ContentItem:
				if e.Type == ContentTypeText {
					sb.WriteString(e.Text)
				}
			}
		}
		return sb.String()
	default:
		return ""
	}
}

func blockText(b *Block) string {
	if b == nil || b.BlockType != BlockTypeText || b.TextContent == nil {
		return ""
	}
	return *b.TextContent
}

func mapText(m map[string]interface{}) string {
	if t, _ := m["type"].(string); t != BlockTypeText {
		return ""
	}
	text, _ := m["text"].(string)
	return text
}
