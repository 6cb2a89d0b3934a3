package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/policy"
)

// printReport renders the records of a run followed by its summary.
// Dry-run output is labelled so it is never mistaken for applied changes.
func printReport(out io.Writer, report *engine.Report) {
	simulated := report.Mode == engine.ModeDryRun
	if simulated {
		_, _ = fmt.Fprintln(out, color.YellowString("Dry run: no changes were made to this machine."))
	}

	manifest := ""
	for _, rec := range report.Records {
		if rec.Manifest != manifest {
			manifest = rec.Manifest
			_, _ = fmt.Fprintln(out, color.New(color.Bold).Sprint(manifest))
		}
		printRecord(out, rec, simulated)
	}

	if report.Pending > 0 {
		_, _ = fmt.Fprintln(out, color.YellowString("%d action(s) not attempted", report.Pending))
	}

	_, _ = fmt.Fprintln(out, statusColor(report.Status)("%s", report.Summary()))
}

func printRecord(out io.Writer, rec engine.ActionRecord, simulated bool) {
	switch {
	case rec.Failed():
		_, _ = fmt.Fprintf(out, "  %s %s: %v\n", color.RedString("FAILED"), rec.Kind, rec.Err)
	case simulated:
		_, _ = fmt.Fprintf(out, "  %s %s\n", color.CyanString("[dry-run]"), indent(rec.Message))
	default:
		_, _ = fmt.Fprintf(out, "  %s %s\n", color.GreenString("ok"), indent(rec.Message))
	}
}

// indent aligns continuation lines (diffs) under the first line.
func indent(message string) string {
	return strings.ReplaceAll(strings.TrimRight(message, "\n"), "\n", "\n    ")
}

func statusColor(status engine.RunStatus) func(format string, a ...interface{}) string {
	switch status {
	case engine.RunStatusSucceeded:
		return color.GreenString
	case engine.RunStatusPartial:
		return color.YellowString
	default:
		return color.RedString
	}
}

func printNoManifests(out io.Writer, locations []string) {
	if len(locations) == 0 {
		_, _ = fmt.Fprintln(out, color.YellowString("No manifests configured. Create Homestead.yaml or pass --manifests."))
		return
	}
	_, _ = fmt.Fprintln(out, color.YellowString("No manifests found in %s", strings.Join(locations, ", ")))
}

// printViolations lists policy findings, one per line.
func printViolations(out io.Writer, result *policy.Result) {
	for _, v := range result.Violations {
		_, _ = fmt.Fprintf(out, "%s %s[%d] %s: %s (%s)\n",
			severityLabel(v.Severity), v.Manifest, v.Action, v.Kind, v.Message, v.Policy)
	}
}

func severityLabel(s policy.Severity) string {
	switch s {
	case policy.SeverityError:
		return color.RedString("DENY")
	case policy.SeverityWarning:
		return color.YellowString("WARN")
	default:
		return color.CyanString("INFO")
	}
}
