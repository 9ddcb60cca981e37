package updater

import (
	"fmt"
	"io"
	"time"

	"github.com/morikuni/aec"

	"github.com/uniconv/uniconv/internal/branding"
	"github.com/uniconv/uniconv/internal/install"
	"github.com/uniconv/uniconv/internal/manifest"
)

// CheckAndPrintBanner prints the banner when the cached index shows updates
// that were not announced recently. It is silent on any error.
func CheckAndPrintBanner(w io.Writer, stateDir string, idx *manifest.Index, records []*install.Record) {
	if idx == nil || len(records) == 0 {
		return
	}
	outdated := Check(idx, records)
	if len(outdated) == 0 {
		return
	}

	names := Names(outdated)
	state, _ := LoadState(stateDir)
	now := time.Now()
	if !state.ShouldShow(names, DefaultBannerInterval, now) {
		return
	}
	PrintBanner(w, outdated)
	_ = SaveState(stateDir, &BannerState{Plugins: names, ShownAt: now})
}

// PrintBanner prints the update notification to w.
func PrintBanner(w io.Writer, outdated []Outdated) {
	noun := "update"
	if len(outdated) != 1 {
		noun = "updates"
	}
	fmt.Fprintf(w, "\n%s\n", aec.YellowF.Apply(fmt.Sprintf("%d plugin %s available", len(outdated), noun)))
	for _, o := range outdated {
		fmt.Fprintf(w, "    %s %s -> %s\n", o.Name, o.Installed, o.Latest)
	}
	fmt.Fprintf(w, "    Run `%s plugin update --all` to upgrade\n\n", branding.CLIName())
}
