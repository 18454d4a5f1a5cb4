package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/webreader/internal/format"
	"github.com/JakeFAU/webreader/internal/reader"
)

type fetchFlags struct {
	engine  string
	js      bool
	target  string
	remove  []string
	wait    string
	links   bool
	images  bool
	full    bool
	timeout time.Duration
	asJSON  bool
}

// newFetchCmd creates the 'fetch' subcommand, a one-shot resolve that prints
// the Markdown rendering (or JSON) to stdout.
func newFetchCmd() *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Converts a single page to Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			doc, err := appInstance.Resolve(cmd.Context(), flags.request(args[0]))
			if err != nil {
				return err
			}
			return writeDocument(cmd, doc, flags.asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.engine, "engine", "", "fetch engine: direct, rendered (alias browser)")
	f.BoolVar(&flags.js, "js", false, "shortcut for --engine rendered")
	f.StringVar(&flags.target, "target", "", "CSS selector for the content region")
	f.StringSliceVar(&flags.remove, "remove", nil, "CSS selectors to strip before conversion")
	f.StringVar(&flags.wait, "wait", "", "CSS selector to wait for (rendered engine)")
	f.BoolVar(&flags.links, "links", false, "include the link map")
	f.BoolVar(&flags.images, "images", false, "include the image map")
	f.BoolVar(&flags.full, "full", false, "keep the whole page body")
	f.DurationVar(&flags.timeout, "timeout", 0, "fetch timeout override")
	f.BoolVar(&flags.asJSON, "json", false, "print the document as JSON")
	return cmd
}

func (f fetchFlags) request(rawURL string) reader.FetchRequest {
	target := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}
	engine := reader.Engine(strings.TrimSpace(f.engine))
	if engine == "" && f.js {
		engine = reader.EngineRendered
	}
	return reader.FetchRequest{
		URL:             target,
		Engine:          engine,
		TargetSelector:  f.target,
		RemoveSelectors: f.remove,
		WaitForSelector: f.wait,
		IncludeLinks:    f.links,
		IncludeImages:   f.images,
		FullContent:     f.full,
		Timeout:         f.timeout,
		NoCache:         true,
	}
}

func writeDocument(cmd *cobra.Command, doc reader.Document, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return nil
	}
	if _, err := fmt.Fprintln(out, format.Markdown(doc)); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
