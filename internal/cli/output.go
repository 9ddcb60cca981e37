package cli

import (
	"fmt"
	"io"

	"github.com/morikuni/aec"

	"github.com/uniconv/uniconv/internal/depcheck"
	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/install"
)

var (
	markOK   = aec.GreenF.Apply("✓")
	markFail = aec.RedF.Apply("✗")
	markWarn = aec.YellowF.Apply("!")
)

// printOutcome prints one line per install/update outcome followed by any
// dependency gaps.
func printOutcome(w io.Writer, verb string, o install.Outcome) {
	if o.Err != nil {
		_, cause := errdefs.Describe(o.Err)
		if cause == "" {
			cause = o.Err.Error()
		}
		fmt.Fprintf(w, "%s %s: %s\n", markFail, o.Target.Name, cause)
		return
	}

	res := o.Result
	switch {
	case !res.Changed:
		fmt.Fprintf(w, "%s %s %s is up to date\n", markOK, res.Record.Name, res.Record.Version)
	case res.Previous != "" && res.Previous != res.Record.Version:
		fmt.Fprintf(w, "%s %s %s -> %s %s\n", markOK, res.Record.Name, res.Previous, res.Record.Version, verb)
	default:
		fmt.Fprintf(w, "%s %s %s %s\n", markOK, res.Record.Name, res.Record.Version, verb)
	}
	printReport(w, res.Deps, true)
}

// printReport prints dependency results. With problemsOnly set, satisfied
// dependencies are omitted.
func printReport(w io.Writer, report depcheck.Report, problemsOnly bool) {
	for _, r := range report {
		if r.OK() {
			if !problemsOnly {
				fmt.Fprintf(w, "    %s %s\n", markOK, r)
			}
			continue
		}
		fmt.Fprintf(w, "    %s %s\n", markWarn, r)
	}
}
