package format

import "fmt"

// DefaultChunkBytes is the per-message payload ceiling shared by the
// WeChat-family push APIs.
const DefaultChunkBytes = 2000

// SplitByBytes splits s into ordered chunks whose UTF-8 encodings are each
// at most maxBytes long. The split walks codepoints, never bytes, so a
// multi-byte rune is never cut in half. Concatenating the chunks yields s
// exactly; an empty input yields no chunks.
func SplitByBytes(s string, maxBytes int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultChunkBytes
	}
	if len(s) <= maxBytes {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var chunks []string
	start := 0
	size := 0
	for i, r := range s {
		runeLen := len(string(r))
		if size+runeLen > maxBytes {
			chunks = append(chunks, s[start:i])
			start = i
			size = 0
		}
		size += runeLen
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}

// ChunkPrefix builds the label prefixed to every outbound chunk. Index is
// 1-based; the fullwidth parentheses match what the platforms render.
func ChunkPrefix(modelLabel string, index int) string {
	return fmt.Sprintf("%s（%d）: ", modelLabel, index)
}

// ReplyText renders the final answer with its provider attribution using
// the per-source convention.
func ReplyText(source, providerLabel, content string) string {
	switch source {
	case "wechat":
		return fmt.Sprintf("%s:\n\n%s", providerLabel, content)
	case "wecom":
		return fmt.Sprintf("[%s]\n%s", providerLabel, content)
	default:
		return fmt.Sprintf("%s: %s", providerLabel, content)
	}
}
