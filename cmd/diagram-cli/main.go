package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"diagram-go/internal/config"
	"diagram-go/internal/d2"
	"diagram-go/internal/diagram"
	"diagram-go/internal/dispatch"
	"diagram-go/internal/logging"
	"diagram-go/internal/mermaid"
	"diagram-go/internal/plantuml"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type globalOpts struct {
	configPath string
	verbose    bool
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var g globalOpts

	root := &cobra.Command{
		Use:           "diagram-cli",
		Short:         "Turn PlantUML, Mermaid and D2 sources into shareable diagram links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if g.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.NewLoggerTo(cmd.ErrOrStderr(), level, "text", "diagram-cli"))
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newEncodeCmd(&g))
	root.AddCommand(newFetchCmd(&g))
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

type encodeOpts struct {
	lang        string
	diagramType string
	theme       string
	layout      string
	sketch      bool
	edit        bool
}

func newEncodeCmd(g *globalOpts) *cobra.Command {
	var opts encodeOpts

	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Print the diagram URL for a source file, or stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args)
			if err != nil {
				return err
			}
			lang, err := diagram.ParseLanguage(opts.lang)
			if err != nil {
				return err
			}

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}

			if opts.edit {
				if lang != diagram.Mermaid {
					return diagram.Validation("--edit is only supported for mermaid")
				}
				theme := opts.theme
				if theme == "" {
					theme = cfg.Mermaid.Theme
				}
				enc := mermaid.NewEncoder(cfg.Mermaid.InkURL, cfg.Mermaid.LiveURL)
				link, err := enc.EditURL(mermaid.BuildState(source, theme))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			}

			d, closeFn, err := dispatch.FromConfig(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := d.Render(cmd.Context(), diagram.Request{
				Language:    lang,
				DiagramType: opts.diagramType,
				Source:      source,
				Options: diagram.Options{
					Theme:  opts.theme,
					Layout: opts.layout,
					Sketch: opts.sketch,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.URL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.lang, "lang", "l", "", "diagram language: plantuml, mermaid or d2")
	cmd.Flags().StringVarP(&opts.diagramType, "type", "t", "", "diagram type, e.g. sequence or class")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "mermaid or d2 theme name")
	cmd.Flags().StringVar(&opts.layout, "layout", "", "d2 layout engine (dagre, elk)")
	cmd.Flags().BoolVar(&opts.sketch, "sketch", false, "d2 hand-drawn mode")
	cmd.Flags().BoolVar(&opts.edit, "edit", false, "print the mermaid.live editor link instead")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func newFetchCmd(g *globalOpts) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch [file]",
		Short: "Render a PlantUML source on the server and save the image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}

			client := plantuml.NewClient(plantuml.ClientConfig{
				ServerURL:  cfg.PlantUML.ServerURL,
				Format:     cfg.PlantUML.Format,
				Timeout:    cfg.PlantUML.Timeout,
				MaxRetries: cfg.PlantUML.MaxRetries,
				RateLimit:  cfg.PlantUML.RateLimit,
			}, nil, slog.Default())

			link, content, err := client.FetchRender(cmd.Context(), source)
			if err != nil {
				return err
			}
			if output == "" {
				output = "diagram." + client.Encoder().Format
			}
			if err := os.WriteFile(output, content, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nwrote %d bytes to %s\n", link, len(content), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default diagram.<format>)")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "decode <url-or-payload>",
		Short: "Recover the diagram source from a generated link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := decodeLink(lang, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), source)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "diagram language; guessed from the link when empty")
	return cmd
}

// decodeLink reverses the encoders. D2 links decode only when their script
// came from the local compiler.
func decodeLink(lang, link string) (string, error) {
	if lang == "" {
		lang = guessLanguage(link)
	}
	l, err := diagram.ParseLanguage(lang)
	if err != nil {
		return "", err
	}

	switch l {
	case diagram.PlantUML:
		return plantuml.Decode(link[strings.LastIndex(link, "/")+1:])
	case diagram.Mermaid:
		payload := link
		if i := strings.LastIndexAny(link, "/#"); i >= 0 {
			payload = link[i+1:]
		}
		state, err := mermaid.DecodePayload(payload)
		if err != nil {
			return "", err
		}
		return state.Code, nil
	case diagram.D2:
		script := link
		if u, err := url.Parse(link); err == nil && u.Query().Has("script") {
			script = u.Query().Get("script")
		}
		return d2.DecodeScript(script)
	default:
		return "", diagram.Validation(fmt.Sprintf("unsupported lang %q", lang))
	}
}

func guessLanguage(link string) string {
	switch {
	case strings.Contains(link, "mermaid"), strings.HasPrefix(link, "pako:"), strings.HasPrefix(link, "base64:"):
		return "mermaid"
	case strings.Contains(link, "d2lang"):
		return "d2"
	default:
		return "plantuml"
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "diagram-cli %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	if len(data) == 0 {
		return "", diagram.Validation("code must not be empty")
	}
	return string(data), nil
}
