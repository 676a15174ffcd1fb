package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"

	"testrunner/internal/adapter"
)

// Resolve re-queries a previously discovered (or cached) selector against
// the live page. Plain selectors are passed straight through to the
// adapter's CSS query; the ordinal/role-family micro-syntax synthesized by
// matchOrdinal ("role=ROLE >> nth=N") is interpreted here since it is not
// valid CSS on its own.
func Resolve(ctx context.Context, page *adapter.Page, selector, within string) (adapter.QueryResult, error) {
	if role, nth, ok := parseRoleNth(selector); ok {
		return resolveRoleNth(ctx, page, within, role, nth)
	}
	return page.Query(ctx, selector, within)
}

func parseRoleNth(selector string) (role string, nth int, ok bool) {
	parts := strings.SplitN(selector, ">>", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	rolePart := strings.TrimSpace(parts[0])
	nthPart := strings.TrimSpace(parts[1])
	if !strings.HasPrefix(rolePart, "role=") || !strings.HasPrefix(nthPart, "nth=") {
		return "", 0, false
	}
	role = strings.TrimPrefix(rolePart, "role=")
	n, err := strconv.Atoi(strings.TrimPrefix(nthPart, "nth="))
	if err != nil {
		return "", 0, false
	}
	return role, n, true
}

func resolveRoleNth(ctx context.Context, page *adapter.Page, within, family string, nth int) (adapter.QueryResult, error) {
	elements, err := Collect(ctx, page, within)
	if err != nil {
		return adapter.QueryResult{}, err
	}
	pattern, ok := roleFamilies[family]
	if !ok {
		pattern = roleFamilies["item"]
	}
	var matches []*rod.Element
	for _, el := range elements {
		haystack := el.Tag + " " + strings.Join(el.ClassList, " ") + " " + el.Role
		if pattern.MatchString(haystack) {
			matches = append(matches, el.Element)
		}
	}
	if nth < 0 || nth >= len(matches) {
		return adapter.QueryResult{}, fmt.Errorf("role family %q nth=%d out of range (%d matches)", family, nth, len(matches))
	}
	return adapter.QueryResult{Elements: []*rod.Element{matches[nth]}}, nil
}
