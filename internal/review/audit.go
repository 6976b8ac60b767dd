package review

import (
	"regexp"
	"strings"

	"github.com/sells-group/soil-etl/internal/encmap"
	"github.com/sells-group/soil-etl/internal/model"
)

const maxSamples = 5

var genericEncoding = regexp.MustCompile(`^\{(?:\d+:\s*[^,]+(?:,\s*)?)+\}$`)

// PatternAudit counts encodings that do not have the expected shape.
type PatternAudit struct {
	Column     string   `yaml:"column"`
	Checked    int      `yaml:"checked"`
	Mismatched int      `yaml:"mismatched"`
	Samples    []string `yaml:"samples,omitempty"`
}

// AuditEncodings checks value and date encodings against the flat
// instance-map pattern and method encodings against the method grammar.
// Null cells are not checked.
func AuditEncodings(records []model.WideRecord) []PatternAudit {
	value := PatternAudit{Column: model.ColValue}
	date := PatternAudit{Column: model.ColDate}
	method := PatternAudit{Column: model.ColMethod}

	for _, r := range records {
		if r.ValueEncoding != nil {
			value.check(*r.ValueEncoding, genericEncoding.MatchString(strings.TrimSpace(*r.ValueEncoding)))
		}
		if r.DateEncoding != nil {
			date.check(*r.DateEncoding, genericEncoding.MatchString(strings.TrimSpace(*r.DateEncoding)))
		}
		if r.MethodEncoding != nil {
			m, err := encmap.ParseMethod(*r.MethodEncoding)
			method.check(*r.MethodEncoding, err == nil && m.Len() > 0)
		}
	}
	return []PatternAudit{value, date, method}
}

func (a *PatternAudit) check(v string, ok bool) {
	a.Checked++
	if ok {
		return
	}
	a.Mismatched++
	if len(a.Samples) < maxSamples {
		a.Samples = append(a.Samples, v)
	}
}
