package change

import (
	"fmt"
	"sort"
	"strings"
)

const maxChangeLines = 30

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func signedInt(v int64) string {
	if v < 0 {
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("+%d", v)
}

// emoji returns the glyph shown in the <summary> line for a kind.
func (k Kind) emoji() string {
	switch k {
	case KindNewMatch:
		return "✅"
	case KindBrokenMatch:
		return "💔"
	case KindImprovement:
		return "📈"
	case KindRegression:
		return "📉"
	default:
		return ""
	}
}

func (k Kind) singularDescription() string {
	switch k {
	case KindNewMatch:
		return "new match"
	case KindBrokenMatch:
		return "broken match"
	case KindImprovement:
		return "improvement in an unmatched item"
	case KindRegression:
		return "regression in an unmatched item"
	default:
		return ""
	}
}

func (k Kind) pluralDescription() string {
	switch k {
	case KindNewMatch:
		return "new matches"
	case KindBrokenMatch:
		return "broken matches"
	case KindImprovement:
		return "improvements in unmatched items"
	case KindRegression:
		return "regressions in unmatched items"
	default:
		return ""
	}
}

// measureLineMatched renders a counter that carries both a byte count and a
// match percentage (Matched code, Linked code, Matched data, Linked data).
func measureLineMatched(name string, from uint64, fromPct float64, to uint64, toPct float64) string {
	arrow := "📉"
	if to > from {
		arrow = "📈"
	}
	pctDiff := toPct - fromPct
	pctDiffStr := fmt.Sprintf("%.2f%%", pctDiff)
	if pctDiff >= 0 {
		pctDiffStr = "+" + pctDiffStr
	}
	bytesDiff := int64(to) - int64(from)
	return fmt.Sprintf("%s **%s**: %s (%s, %s bytes)\n", arrow, name, formatPercent(toPct), pctDiffStr, signedInt(bytesDiff))
}

// measureLineBytes renders a plain byte counter (Total code, Total data).
func measureLineBytes(name string, from, to uint64) string {
	diff := int64(to) - int64(from)
	return fmt.Sprintf("**%s**: %d bytes (%s bytes)\n", name, to, signedInt(diff))
}

// measureLineSimple renders a plain count (Total functions).
func measureLineSimple(name string, from, to uint64) string {
	diff := int64(to) - int64(from)
	return fmt.Sprintf("**%s**: %d (%s)\n", name, to, signedInt(diff))
}

// changeLine is one rendered table row, grouped and sorted by Kind before
// output.
type changeLine struct {
	kind                   Kind
	unitName, itemName     string
	fromFuzzyMatchPercent  float64
	toFuzzyMatchPercent    float64
	bytesDiff              int64
}

func outputLine(l changeLine, out *strings.Builder) {
	bytesStr := "0"
	if l.bytesDiff != 0 {
		bytesStr = signedInt(l.bytesDiff)
	}
	fmt.Fprintf(out, "| `%s` | `%s` | %s | %s | %s |\n",
		l.unitName, l.itemName, bytesStr,
		formatPercent(l.fromFuzzyMatchPercent), formatPercent(l.toFuzzyMatchPercent))
}

// renderChangesList groups lines by kind (fixed order NewMatch, BrokenMatch,
// Improvement, Regression), and renders one <details> block per kind,
// skipping kinds with no lines. BrokenMatch is rendered pre-expanded.
func renderChangesList(lines []changeLine, out *strings.Builder) {
	byKind := map[Kind][]changeLine{}
	for _, l := range lines {
		byKind[l.kind] = append(byKind[l.kind], l)
	}

	for _, kind := range []Kind{KindNewMatch, KindBrokenMatch, KindImprovement, KindRegression} {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}

		total := len(group)
		description := kind.pluralDescription()
		if total == 1 {
			description = kind.singularDescription()
		}

		if kind == KindBrokenMatch {
			out.WriteString("<details open>\n")
		} else {
			out.WriteString("<details>\n")
		}
		fmt.Fprintf(out, "<summary>%s %d %s</summary>\n", kind.emoji(), total, description)
		out.WriteString("\n")
		out.WriteString("| Unit | Item | Bytes | Before | After |\n")
		out.WriteString("| - | - | - | - | - |\n")

		switch kind {
		case KindNewMatch, KindImprovement:
			sort.SliceStable(group, func(i, j int) bool { return group[i].bytesDiff > group[j].bytesDiff })
		case KindBrokenMatch, KindRegression:
			sort.SliceStable(group, func(i, j int) bool { return group[i].bytesDiff < group[j].bytesDiff })
		}

		shown := 0
		for _, l := range group {
			if shown >= maxChangeLines {
				break
			}
			outputLine(l, out)
			shown++
		}

		out.WriteString("\n")

		if remaining := total - shown; remaining > 0 {
			fmt.Fprintf(out, "...and %d more %s\n", remaining, description)
		}
		out.WriteString("</details>\n\n")
	}
}

// truncatedSHA returns the first 7 characters of a commit SHA, or "<none>"
// if sha is empty.
func truncatedSHA(sha string) string {
	if sha == "" {
		return "<none>"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// RenderMissingReport renders the stub comment posted when a version's
// report could not be found for one of the two commits being compared.
func RenderMissingReport(version, fromSHA, toSHA string) string {
	return fmt.Sprintf("### Report for %s (%s - %s)\n\n[!] Report not found. Did the build succeed?\n\n",
		version, truncatedSHA(fromSHA), truncatedSHA(toSHA))
}

// RenderCombined joins several per-version comments (each already rendered
// by Render or RenderMissingReport) into one combined comment body.
func RenderCombined(versionComments []string) string {
	return strings.Join(versionComments, "---\n\n")
}

// Render renders the Markdown comment body for one version's Changes: a
// heading naming the version and the compared commits, a totals block for
// any measure that differs, and one grouped table per change kind.
func Render(c Changes, version, fromSHA, toSHA string) string {
	if version == "" {
		version = "unknown"
	}
	var out strings.Builder
	fmt.Fprintf(&out, "### Report for %s (%s - %s)\n\n", version, truncatedSHA(fromSHA), truncatedSHA(toSHA))

	from, to := c.FromMeasures, c.ToMeasures
	measureWritten := false
	if from.CodeBytesTotal != to.CodeBytesTotal {
		out.WriteString(measureLineBytes("Total code", from.CodeBytesTotal, to.CodeBytesTotal))
		measureWritten = true
	}
	if from.FunctionsTotal != to.FunctionsTotal {
		out.WriteString(measureLineSimple("Total functions", from.FunctionsTotal, to.FunctionsTotal))
		measureWritten = true
	}
	if from.CodeBytesMatched != to.CodeBytesMatched {
		out.WriteString(measureLineMatched("Matched code", from.CodeBytesMatched, from.CodePercent, to.CodeBytesMatched, to.CodePercent))
		measureWritten = true
	}
	if from.CodeBytesComplete != to.CodeBytesComplete {
		out.WriteString(measureLineMatched("Linked code", from.CodeBytesComplete, from.CodeCompletePct, to.CodeBytesComplete, to.CodeCompletePct))
		measureWritten = true
	}
	if from.DataBytesTotal != to.DataBytesTotal {
		out.WriteString(measureLineBytes("Total data", from.DataBytesTotal, to.DataBytesTotal))
		measureWritten = true
	}
	if from.DataBytesMatched != to.DataBytesMatched {
		out.WriteString(measureLineMatched("Matched data", from.DataBytesMatched, from.DataPercent, to.DataBytesMatched, to.DataPercent))
		measureWritten = true
	}
	if from.DataBytesComplete != to.DataBytesComplete {
		out.WriteString(measureLineMatched("Linked data", from.DataBytesComplete, from.DataCompletePct, to.DataBytesComplete, to.DataCompletePct))
		measureWritten = true
	}
	if measureWritten {
		out.WriteString("\n")
	}

	var lines []changeLine
	for _, it := range c.Items {
		if it.Kind == KindIgnored {
			continue
		}
		lines = append(lines, changeLine{
			kind:                   it.Kind,
			unitName:               it.UnitName,
			itemName:               it.ItemName,
			fromFuzzyMatchPercent:  it.FromPercent,
			toFuzzyMatchPercent:    it.ToPercent,
			bytesDiff:              it.MatchedBytesDelta(),
		})
	}

	if len(lines) > 0 {
		renderChangesList(lines, &out)
	} else {
		out.WriteString("No changes\n")
	}

	return out.String()
}
