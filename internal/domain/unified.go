package domain

import (
	"fmt"
	"sort"
	"strings"
)

// CanonicalLines flattens a field set into sorted "  path: value" lines
// suitable for line based diffing.
func CanonicalLines(f Fields) []string {
	flattened := map[string]string{}
	flattenValue("", Object(f), flattened)

	if len(flattened) == 0 {
		return []string{"  (empty)"}
	}

	keys := make([]string, 0, len(flattened))
	for key := range flattened {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
	}
	return lines
}

// RenderUnified produces a unified diff between two field sets using the
// provided labels, e.g. "S1@v1" and "S1@v3".
func RenderUnified(baseLabel string, base Fields, targetLabel string, target Fields) string {
	baseLines := CanonicalLines(base)
	targetLines := CanonicalLines(target)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", len(baseLines), len(targetLines)))
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func flattenValue(prefix string, value Value, acc map[string]string) {
	switch typed := value.(type) {
	case Object:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return
		}
		for key, item := range typed {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			flattenValue(next, item, acc)
		}
	case List:
		// Lists are unordered; render them canonically so reordering is not a diff.
		acc[prefix] = string(CanonicalJSON(typed))
	case String:
		acc[prefix] = fmt.Sprintf("%q", string(typed))
	case nil, Null:
		acc[prefix] = "null"
	default:
		acc[prefix] = Display(typed)
	}
}

type diffOp struct {
	prefix string
	line   string
}

func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
