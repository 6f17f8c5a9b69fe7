package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/johnayoung/ai-council/internal/catalog"
	"github.com/johnayoung/ai-council/internal/config"
	"github.com/johnayoung/ai-council/internal/provider"
)

func main() {
	var (
		configPath     string
		outPath        string
		list           bool
		timeoutSeconds int
	)
	flag.StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	flag.StringVar(&outPath, "out", "", "output file path (defaults to stdout)")
	flag.BoolVar(&list, "list", false, "print the full catalogs instead of checking the configuration")
	flag.IntVar(&timeoutSeconds, "timeout", 20, "HTTP timeout in seconds")
	flag.Parse()

	file, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	cfg := file.Council()
	specs := cfg.Models
	if cfg.SynthesisModel != nil {
		specs = append(specs, *cfg.SynthesisModel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Duration(timeoutSeconds)*time.Second)
	defer cancel()
	listers := newListers(specs, &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second})

	var payload any
	missing := 0
	if list {
		payload = fetchAll(ctx, listers)
	} else {
		report := catalog.Check(ctx, specs, listers)
		missing = len(report.Missing)
		payload = report
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fatal(err)
	}
	if outPath == "" {
		_, _ = os.Stdout.Write(append(data, '\n'))
	} else if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fatal(err)
	}

	if missing > 0 {
		os.Exit(1)
	}
}

// newListers builds one lister per OpenAI-compatible family, using the key
// and base URL of the first configured model of that family. OpenRouter is
// always listed since its catalog needs no key.
func newListers(specs []provider.ModelSpec, hc *http.Client) map[string]catalog.Lister {
	listers := make(map[string]catalog.Lister)
	for _, s := range specs {
		if _, ok := listers[s.Provider]; ok {
			continue
		}
		switch s.Provider {
		case provider.FamilyOpenAI:
			listers[s.Provider] = catalog.NewOpenAILister(s.APIKey, s.BaseURL, hc)
		case provider.FamilyOpenRouter:
			listers[s.Provider] = catalog.NewOpenRouterLister(s.APIKey, s.BaseURL, hc)
		}
	}
	if _, ok := listers[provider.FamilyOpenRouter]; !ok {
		listers[provider.FamilyOpenRouter] = catalog.NewOpenRouterLister("", "", hc)
	}
	return listers
}

// fetchAll returns every catalog record in stable order. Failed sources are
// reported on stderr so partial output is still written.
func fetchAll(ctx context.Context, listers map[string]catalog.Lister) []catalog.Record {
	sources := make([]string, 0, len(listers))
	for s := range listers {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var all []catalog.Record
	for _, s := range sources {
		recs, err := listers[s].List(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s: %v\n", s, err)
			continue
		}
		all = append(all, recs...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Source == all[j].Source {
			return all[i].ID < all[j].ID
		}
		return all[i].Source < all[j].Source
	})
	return all
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
	os.Exit(1)
}
