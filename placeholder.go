package fbdriver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Named binds statement parameters by placeholder name.
type Named map[string]any

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	execBlockRe    = regexp.MustCompile(`(?i)\bexecute\s+block\b`)
	beginRe        = regexp.MustCompile(`(?i)\bbegin\b`)
	endRe          = regexp.MustCompile(`(?i)\bend\b`)
	placeholderRe  = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_$]*)`)
)

// placeholders is SQL text with its named placeholders rewritten to
// positional markers.
//
// Known limitation: string literals are not masked, so a literal containing
// a colon followed by identifier characters is treated as a placeholder.
type placeholders struct {
	sql   string
	names []string
}

type maskedSegment struct {
	marker string
	text   string
}

// parsePlaceholders rewrites every :name outside comments and procedural
// block bodies into "?" padded with spaces to the original length, so
// positions reported by the engine still match the caller's text.
func parsePlaceholders(sql string) *placeholders {
	var segments []maskedSegment
	counter := 0
	nextMarker := func(current string) string {
		for {
			marker := "\x00" + strconv.Itoa(counter) + "\x00"
			counter++
			if !strings.Contains(sql, marker) && !strings.Contains(current, marker) {
				return marker
			}
		}
	}

	text := sql
	for _, re := range []*regexp.Regexp{blockCommentRe, lineCommentRe} {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			marker := nextMarker(text)
			segments = append(segments, maskedSegment{marker: marker, text: match})
			return marker
		})
	}
	text = maskBlockBodies(text, &segments, nextMarker)

	var names []string
	text = placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		names = append(names, match[1:])
		return "?" + strings.Repeat(" ", len(match)-1)
	})

	for i := len(segments) - 1; i >= 0; i-- {
		text = strings.Replace(text, segments[i].marker, segments[i].text, 1)
	}

	return &placeholders{sql: text, names: names}
}

// maskBlockBodies masks the BEGIN..END body of every EXECUTE BLOCK. The
// header, where input parameters are declared, stays visible.
func maskBlockBodies(text string, segments *[]maskedSegment, nextMarker func(string) string) string {
	var sb strings.Builder
	for {
		loc := execBlockRe.FindStringIndex(text)
		if loc == nil {
			break
		}
		begin := beginRe.FindStringIndex(text[loc[1]:])
		if begin == nil {
			break
		}
		start := loc[1] + begin[0]

		ends := endRe.FindAllStringIndex(text[start:], -1)
		if len(ends) == 0 {
			break
		}
		stop := start + ends[len(ends)-1][1]

		marker := nextMarker(text)
		*segments = append(*segments, maskedSegment{marker: marker, text: text[start:stop]})
		sb.WriteString(text[:start])
		sb.WriteString(marker)
		text = text[stop:]
	}
	sb.WriteString(text)
	return sb.String()
}

// prepareParams resolves a single Named argument into positional values in
// placeholder order. Any other input is positional and returned unchanged.
func (p *placeholders) prepareParams(args []any) ([]any, error) {
	if len(args) != 1 {
		return args, nil
	}
	named, ok := args[0].(Named)
	if !ok {
		if m, isMap := args[0].(map[string]any); isMap {
			named, ok = Named(m), true
		}
	}
	if !ok {
		return args, nil
	}

	values := make([]any, len(p.names))
	for i, name := range p.names {
		v, found := named[name]
		if !found {
			return nil, NewError(ErrorTypeParameterValueMissing,
				fmt.Sprintf("no value for parameter %q in statement %q", name, p.sql))
		}
		values[i] = v
	}
	return values, nil
}
