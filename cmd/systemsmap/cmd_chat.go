package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"systemsmap-client/internal/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation in the terminal",
	Long: `Reads questions from stdin and keeps one conversation for the whole run.

Commands:
  /upload <files...>          upload documents
  /map                        show the systems map status
  /zoom in|out|reset          change the map zoom
  /retry                      re-resolve a systems map that failed to load
  /legacy a,b,c [src>dst:type...]   draw a map with the legacy endpoint
  /export                     save the systems map
  /history                    print the conversation
  /quit                       exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	return chatLoop(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
}

func chatLoop(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if line != "" {
			if err := chatLine(ctx, a, line, out); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			printNotifications(out, a.state)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func chatLine(ctx context.Context, a *app, line string, out io.Writer) error {
	if !strings.HasPrefix(line, "/") {
		a.state.SetInput(line)
		history, err := a.exchange.Submit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, lastAssistant(history))
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/upload":
		files, err := readUploadFiles(fields[1:])
		if err != nil {
			return err
		}
		result, err := a.intake.UploadBatch(ctx, files)
		if err != nil {
			return err
		}
		if result.NoOp {
			fmt.Fprintln(out, "Nothing to upload.")
			return nil
		}
		fmt.Fprintf(out, "Uploaded %s\n", strings.Join(result.Files, ", "))
		printDiagram(out, a.state.Diagram())
	case "/map":
		printDiagram(out, a.state.Diagram())
	case "/zoom":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /zoom in|out|reset")
		}
		var t models.ViewTransform
		switch fields[1] {
		case "in":
			t = a.diagram.ZoomIn()
		case "out":
			t = a.diagram.ZoomOut()
		case "reset":
			t = a.diagram.ResetZoom()
		default:
			return fmt.Errorf("usage: /zoom in|out|reset")
		}
		fmt.Fprintf(out, "Zoom %.1fx\n", t.Scale)
	case "/retry":
		if !a.diagram.Retry() {
			fmt.Fprintln(out, "Nothing to retry.")
			return nil
		}
		printDiagram(out, a.state.Diagram())
	case "/legacy":
		req, err := parseLegacyArgs(fields[1:])
		if err != nil {
			return err
		}
		if err := a.diagram.RequestLegacyMap(ctx, req); err != nil {
			return err
		}
		printDiagram(out, a.state.Diagram())
	case "/export":
		outcome, err := a.exporter.ExportCurrent(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported via %s: %s\n", outcome.Sink, outcome.Location)
	case "/history":
		printHistory(out, a.state.Conversation())
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	return nil
}

// parseLegacyArgs reads "a,b,c" followed by "source>target:type" edges.
func parseLegacyArgs(args []string) (models.SystemsMapRequest, error) {
	req := models.SystemsMapRequest{Relationships: []models.Relationship{}}
	if len(args) == 0 {
		return req, fmt.Errorf("usage: /legacy a,b,c [source>target:type ...]")
	}
	for _, e := range strings.Split(args[0], ",") {
		if e = strings.TrimSpace(e); e != "" {
			req.Elements = append(req.Elements, e)
		}
	}
	for _, edge := range args[1:] {
		src, rest, ok := strings.Cut(edge, ">")
		if !ok {
			return req, fmt.Errorf("bad relationship %q, want source>target:type", edge)
		}
		dst, typ, _ := strings.Cut(rest, ":")
		req.Relationships = append(req.Relationships, models.Relationship{Source: src, Target: dst, Type: typ})
	}
	return req, nil
}
