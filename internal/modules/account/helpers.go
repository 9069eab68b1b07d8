package account

import "strings"

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAt(s string) bool {
	return strings.Contains(s, "@")
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}
