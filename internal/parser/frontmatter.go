package parser

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

const (
	metadataYAML    = "YamlStyle"
	metadataPluses  = "PlusesStyle"
	yamlFence       = "---"
	yamlAltClosing  = "..."
	plusesFenceText = "+++"
)

// frontMatter is a metadata block found at the very start of a document.
type frontMatter struct {
	Style        string
	ContentStart int
	ContentEnd   int
	// End is the offset just past the closing fence line, excluding its
	// newline.
	End int
}

func detectFrontMatter(src []byte) (frontMatter, bool) {
	var opening string
	switch {
	case hasFenceLine(src, yamlFence):
		opening = yamlFence
	case hasFenceLine(src, plusesFenceText):
		opening = plusesFenceText
	default:
		return frontMatter{}, false
	}
	contentStart := lineEnd(src, 0)
	if contentStart < len(src) {
		contentStart++
	}
	for pos := contentStart; pos < len(src); {
		end := lineEnd(src, pos)
		line := bytes.TrimRight(src[pos:end], " \t\r")
		closes := string(line) == opening || (opening == yamlFence && string(line) == yamlAltClosing)
		if closes {
			style := metadataYAML
			if opening == plusesFenceText {
				style = metadataPluses
			}
			return frontMatter{Style: style, ContentStart: contentStart, ContentEnd: pos, End: end}, true
		}
		pos = end + 1
	}
	return frontMatter{}, false
}

func hasFenceLine(src []byte, fence string) bool {
	end := lineEnd(src, 0)
	return string(bytes.TrimRight(src[:end], " \t\r")) == fence
}

func lineEnd(src []byte, pos int) int {
	if idx := bytes.IndexByte(src[pos:], '\n'); idx >= 0 {
		return pos + idx
	}
	return len(src)
}

// blankRange overwrites src[start:end] with spaces, keeping newlines, so the
// markdown parser sees blank lines while byte offsets stay unchanged.
func blankRange(src []byte, start, end int) {
	for i := start; i < end && i < len(src); i++ {
		if src[i] != '\n' {
			src[i] = ' '
		}
	}
}

func validateYAML(content []byte) error {
	var out map[string]any
	return yaml.Unmarshal(content, &out)
}
