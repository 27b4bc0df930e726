package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator is used when no provider is configured. It returns canned markdown that
// the agents' extractors understand.
type MockGenerator struct{}

func (MockGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(p.User), "\n", 2)[0])
	return fmt.Sprintf(`## Title: Improve getting-started documentation

%s

Contribution type: Documentation improvement

## Approach
Walk the input once, keeping a hash map of seen values.

Time Complexity: O(n)
Space Complexity: O(n)

Overall Score: 75/100
`, first), nil
}
