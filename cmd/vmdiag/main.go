// Command vmdiag reads a heap profile captured by diag.ENOMEMTracker when
// the fault handler observed a run of consecutive ENOMEM returns, and
// prints a postmortem report: which call sites hold the most allocated
// frames, with any foreign-linkage symbol demangled and byte/frame counts
// formatted with locale-aware grouping.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

func main() {
	var (
		input  = flag.String("profile", "", "path to a heap profile captured by diag.ENOMEMTracker")
		top    = flag.Int("top", 10, "number of call sites to print")
		locale = flag.String("locale", "en", "BCP 47 locale tag for number formatting")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -profile FILE [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Postmortem report for a captured ENOMEM-storm heap profile.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "vmdiag: -profile is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*input, *top, *locale); err != nil {
		fmt.Fprintf(os.Stderr, "vmdiag: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, top int, locale string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	prof, err := profile.Parse(f)
	if err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	sites := siteCounts(prof)
	sort.Slice(sites, func(i, j int) bool { return sites[i].bytes > sites[j].bytes })
	if len(sites) > top {
		sites = sites[:top]
	}

	p.Printf("%d sample types, %d locations, top %d call sites by bytes held:\n\n",
		len(prof.SampleType), len(prof.Location), len(sites))
	for _, s := range sites {
		p.Printf("%-12v  %8v frames  %s\n",
			number.Decimal(s.bytes), number.Decimal(s.frames), s.symbol)
	}
	return nil
}

type siteCount struct {
	symbol string
	bytes  int64
	frames int64
}

// siteCounts aggregates every sample in prof by its innermost (leaf)
// function, demangling any mangled foreign-linkage name before use.
func siteCounts(prof *profile.Profile) []siteCount {
	byline := map[string]*siteCount{}
	for _, sample := range prof.Sample {
		symbol := "unknown"
		if len(sample.Location) > 0 {
			loc := sample.Location[0]
			if len(loc.Line) > 0 && loc.Line[0].Function != nil {
				symbol = demangleName(loc.Line[0].Function.Name)
			}
		}
		entry, ok := byline[symbol]
		if !ok {
			entry = &siteCount{symbol: symbol}
			byline[symbol] = entry
		}
		if len(sample.Value) > 0 {
			entry.frames += sample.Value[0]
		}
		if len(sample.Value) > 1 {
			entry.bytes += sample.Value[1]
		}
	}

	out := make([]siteCount, 0, len(byline))
	for _, v := range byline {
		out = append(out, *v)
	}
	return out
}

// demangleName demangles a foreign-linkage symbol name, falling back to the
// original string for names the demangler does not recognize (ordinary Go
// symbols are already human-readable and need no demangling).
func demangleName(name string) string {
	if result := demangle.Filter(name); result != name {
		return result
	}
	return name
}
