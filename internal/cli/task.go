package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conveyr/conveyr/internal/engine"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Work with pipeline tasks",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	ingestSource    string
	ingestSegment   string
	ingestStatus    string
	ingestTitle     string
	ingestSummary   string
	ingestPriority  int
	ingestPayload   string
	ingestPrimary   []string
	ingestChecklist []string

	claimAgent    string
	claimSegments []string
	claimFloor    int

	submitAgent string
	submitNotes string
	submitLinks []string
	submitFiles []string
	submitMeta  []string
)

var taskIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Create a new task from an upstream source",
	Run: func(cmd *cobra.Command, args []string) {
		rt := mustRuntime()
		defer rt.Close()

		req := engine.IngestRequest{
			SourceID:      ingestSource,
			Segment:       ingestSegment,
			InitialStatus: ingestStatus,
			Title:         ingestTitle,
			Summary:       ingestSummary,
			Priority:      ingestPriority,
		}
		if ingestPayload != "" {
			if err := json.Unmarshal([]byte(ingestPayload), &req.Payload); err != nil {
				fail("invalid --payload JSON: %v", err)
			}
		}
		for _, code := range ingestPrimary {
			req.Templates.Primary = append(req.Templates.Primary, engine.TemplateRef{Code: code})
		}
		for _, code := range ingestChecklist {
			req.Templates.Checklists = append(req.Templates.Checklists, engine.TemplateRef{Code: code})
		}

		result, err := rt.engine.Ingest(req)
		if err != nil {
			failEngine(err)
		}
		fmt.Println(color.GreenString("✓") + " Task created")
		fmt.Printf("  ID:      %s\n", result.ItemID)
		fmt.Printf("  Segment: %s\n", result.Segment)
		fmt.Printf("  Status:  %s\n", result.Status)
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the next task for an agent",
	Run: func(cmd *cobra.Command, args []string) {
		rt := mustRuntime()
		defer rt.Close()

		req := engine.ClaimRequest{AgentID: claimAgent, Segments: claimSegments}
		if cmd.Flags().Changed("floor") {
			req.PriorityFloor = &claimFloor
		}
		task, err := rt.engine.Claim(req)
		if err != nil {
			failEngine(err)
		}
		if task == nil {
			fmt.Println("Nothing to claim.")
			return
		}
		fmt.Println(color.GreenString("✓") + " Task claimed")
		fmt.Printf("  ID:       %s\n", task.Item.ID)
		fmt.Printf("  Title:    %s\n", task.Item.Title)
		fmt.Printf("  Segment:  %s\n", task.Segment)
		fmt.Printf("  Priority: %d\n", task.Item.Priority)
		if task.Item.LockedUntil != nil {
			fmt.Printf("  Locked:   until %s\n", task.Item.LockedUntil.Format(time.RFC3339))
		}
		for _, tpl := range task.Templates {
			fmt.Printf("  Template: %s (%s)\n", tpl.TemplateCode, tpl.TemplateType)
		}
	},
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <task-id>",
	Short: "Submit the result for a claimed task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt := mustRuntime()
		defer rt.Close()

		sub := engine.Submission{Notes: submitNotes}
		for _, raw := range submitLinks {
			title, url, ok := strings.Cut(raw, "=")
			if !ok {
				fail("--link must be title=url, got %q", raw)
			}
			sub.Links = append(sub.Links, engine.SubmissionLink{Title: title, URL: url})
		}
		for _, raw := range submitMeta {
			key, value, ok := strings.Cut(raw, "=")
			if !ok {
				fail("--meta must be key=value, got %q", raw)
			}
			if sub.Metadata == nil {
				sub.Metadata = map[string]any{}
			}
			sub.Metadata[key] = value
		}
		var open []*os.File
		defer func() {
			for _, f := range open {
				f.Close()
			}
		}()
		for _, path := range submitFiles {
			f, err := os.Open(path)
			if err != nil {
				fail("open %s: %v", path, err)
			}
			open = append(open, f)
			sub.Files = append(sub.Files, engine.SubmissionFile{
				Name:   filepath.Base(path),
				Reader: f,
			})
		}

		result, err := rt.engine.Submit(submitAgent, args[0], sub)
		if err != nil {
			failEngine(err)
		}
		fmt.Println(color.GreenString("✓") + " Task submitted")
		fmt.Printf("  Status: %s\n", result.Status)
		if result.Terminal {
			fmt.Println("  Pipeline branch complete (no handoff rule).")
		}
		for _, h := range result.Handoffs {
			marker := "created"
			if h.Reused {
				marker = "already existed"
			}
			fmt.Printf("  Handoff: %s -> %s (%s)\n", h.Segment, h.ItemID, marker)
		}
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its history and artifacts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt := mustRuntime()
		defer rt.Close()

		detail, err := rt.engine.Task(args[0])
		if err != nil {
			failEngine(err)
		}
		fmt.Printf("Task %s\n", detail.Item.ID)
		fmt.Printf("  Ref:      %s\n", detail.Item.ExternalRef)
		fmt.Printf("  Title:    %s\n", detail.Item.Title)
		fmt.Printf("  Segment:  %s\n", detail.Segment)
		fmt.Printf("  Status:   %s\n", detail.Item.StatusCode)
		fmt.Printf("  Priority: %d\n", detail.Item.Priority)
		if detail.Item.AssignedTo != "" {
			fmt.Printf("  Assigned: %s\n", detail.Item.AssignedTo)
		}
		if len(detail.States) > 0 {
			fmt.Println("  History:")
			for _, st := range detail.States {
				line := fmt.Sprintf("    %s  %s", st.CreatedAt.Format(time.RFC3339), st.StatusCode)
				if st.Note != "" {
					line += "  " + st.Note
				}
				fmt.Println(line)
			}
		}
		for _, a := range detail.Artifacts {
			target := a.URL
			if target == "" {
				target = a.StoragePath
			}
			fmt.Printf("  Artifact: [%s] %s %s\n", a.ArtifactType, a.Title, target)
		}
	},
}

var taskReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Return expired claims to the queue",
	Run: func(cmd *cobra.Command, args []string) {
		rt := mustRuntime()
		defer rt.Close()

		released, err := rt.engine.ReleaseExpiredClaims(time.Now())
		if err != nil {
			fail("reap failed: %v", err)
		}
		if len(released) == 0 {
			fmt.Println("No expired claims.")
			return
		}
		fmt.Printf("%s Released %d expired claim(s)\n", color.GreenString("✓"), len(released))
		for _, id := range released {
			fmt.Println("  " + id)
		}
	},
}

func mustRuntime() *runtime {
	rt, err := openRuntime()
	if err != nil {
		fail("%v", err)
	}
	return rt
}

func fail(format string, args ...any) {
	fmt.Printf(color.RedString("✗ ")+format+"\n", args...)
	os.Exit(1)
}

func failEngine(err error) {
	if engErr, ok := engine.AsEngineError(err); ok {
		fail("%s: %s", engErr.Code, engErr.Message)
	}
	fail("%v", err)
}

func init() {
	taskIngestCmd.Flags().StringVar(&ingestSource, "source", "", "upstream source id (required)")
	taskIngestCmd.Flags().StringVar(&ingestSegment, "segment", "", "pipeline segment (required)")
	taskIngestCmd.Flags().StringVar(&ingestStatus, "status", "", "initial status (default queued)")
	taskIngestCmd.Flags().StringVar(&ingestTitle, "title", "", "task title")
	taskIngestCmd.Flags().StringVar(&ingestSummary, "summary", "", "task summary")
	taskIngestCmd.Flags().IntVar(&ingestPriority, "priority", 0, "task priority")
	taskIngestCmd.Flags().StringVar(&ingestPayload, "payload", "", "payload JSON")
	taskIngestCmd.Flags().StringSliceVar(&ingestPrimary, "primary", nil, "primary template codes")
	taskIngestCmd.Flags().StringSliceVar(&ingestChecklist, "checklist", nil, "checklist template codes")
	taskIngestCmd.MarkFlagRequired("source")
	taskIngestCmd.MarkFlagRequired("segment")

	taskClaimCmd.Flags().StringVar(&claimAgent, "agent", "", "agent id (required)")
	taskClaimCmd.Flags().StringSliceVar(&claimSegments, "segments", nil, "restrict to segments")
	taskClaimCmd.Flags().IntVar(&claimFloor, "floor", 0, "minimum priority")
	taskClaimCmd.MarkFlagRequired("agent")

	taskSubmitCmd.Flags().StringVar(&submitAgent, "agent", "", "agent id (required)")
	taskSubmitCmd.Flags().StringVar(&submitNotes, "notes", "", "submission notes")
	taskSubmitCmd.Flags().StringSliceVar(&submitLinks, "link", nil, "result link as title=url")
	taskSubmitCmd.Flags().StringSliceVar(&submitFiles, "file", nil, "result file path")
	taskSubmitCmd.Flags().StringSliceVar(&submitMeta, "meta", nil, "metadata as key=value")
	taskSubmitCmd.MarkFlagRequired("agent")

	taskCmd.AddCommand(taskIngestCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskReapCmd)
}
