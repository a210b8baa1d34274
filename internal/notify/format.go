package notify

import (
	"strconv"
	"strings"

	"etl-notifier/internal/model"
)

// MessageIntro prefixes every message.
const MessageIntro = "\r **[ETL Notifier]** [Automated Message] \n\n"

// FormatSingle renders one record. Templates may use positional slots ({} or {0}..{2}:
// account, environment, error message) or named slots such as {account_name} and {url}.
func FormatSingle(r model.Record, template string) string {
	return MessageIntro + render(template, positional(r), r.Fields())
}

// FormatMultiple renders several records: the template as a heading followed by one line
// per record. An empty lineTemplate uses the default bullet line.
func FormatMultiple(records []model.Record, template, lineTemplate string) string {
	var b strings.Builder
	b.WriteString(MessageIntro)
	b.WriteString(template)
	for _, r := range records {
		if lineTemplate == "" {
			b.WriteString(" \n\n- **" + r.AccountName + "**: **" + r.Environment + "**")
			continue
		}
		b.WriteString(render(lineTemplate, positional(r), r.Fields()))
	}
	return b.String()
}

func positional(r model.Record) []string {
	if r.ErrorMessage != "" {
		return []string{r.AccountName, r.Environment, r.ErrorMessage}
	}
	return []string{r.AccountName, r.Environment}
}

// render substitutes {}, {N} and {name} slots. {{ and }} are literal braces; slots that
// resolve to nothing render empty, an unterminated { is kept as text.
func render(tmpl string, args []string, named map[string]string) string {
	var b strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				b.WriteString(tmpl[i:])
				return b.String()
			}
			field := tmpl[i+1 : i+1+end]
			if k := strings.IndexByte(field, ':'); k >= 0 {
				field = field[:k] // format specs are not supported
			}
			field = strings.TrimSpace(field)
			switch n, err := strconv.Atoi(field); {
			case field == "":
				if next < len(args) {
					b.WriteString(args[next])
				}
				next++
			case err == nil:
				if n >= 0 && n < len(args) {
					b.WriteString(args[n])
				}
			default:
				b.WriteString(named[field])
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
