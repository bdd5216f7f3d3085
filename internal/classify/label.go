package classify

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is the ordered tuple of per-dimension mode indices identifying a class.
type Label []int

// String renders the label in its canonical hyphen-joined storage form.
func (l Label) String() string {
	var b strings.Builder
	for i, m := range l {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(m))
	}
	return b.String()
}

func ParseLabel(s string) (Label, error) {
	if s == "" {
		return nil, fmt.Errorf("parse label: empty")
	}
	parts := strings.Split(s, "-")
	out := make(Label, 0, len(parts))
	for _, p := range parts {
		m, err := strconv.Atoi(p)
		if err != nil || m < 0 {
			return nil, fmt.Errorf("parse label %q: invalid mode index %q", s, p)
		}
		out = append(out, m)
	}
	return out, nil
}
