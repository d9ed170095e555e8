package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FilipeJesus/lanes-sub004/pkg/driver"
	"github.com/FilipeJesus/lanes-sub004/pkg/schema"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lanes",
	Short: "Workflow state machine for long-running agent sessions",
	Long:  "lanes — declarative multi-step workflows driven one directive at a time, with resumable sessions and an append-only trace.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml]",
	Short: "Validate a workflow YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	wf, errs := schema.ValidateFile(args[0])
	if schema.HasErrors(errs) {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
		for i, e := range errs {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", wf.Meta.Name, len(wf.Steps))
	return nil
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}

// --- drive ---

var (
	driveSummary     string
	driveResume      string
	driveSessionsDir string
)

var driveCmd = &cobra.Command{
	Use:   "drive [workflow.yaml]",
	Short: "Drive a workflow session interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrive,
}

func runDrive(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	wf, errs := schema.ValidateFile(filePath)
	if schema.HasErrors(errs) {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return fmt.Errorf("workflow validation failed")
	}

	store := session.NewStore(driveSessionsDir)

	var sess *session.Session
	var err error
	if driveResume != "" {
		sess, err = store.Resume(driveResume)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", driveResume, err)
		}
		fmt.Printf("Resumed session %s (%s)\n", sess.ID, sess.Machine.State().Status)
	} else {
		sess, err = store.Create(filePath, wf, "")
		if err != nil {
			return err
		}
		view := sess.Machine.Start(driveSummary)
		sess.Trace(session.Event{Type: session.EventStarted, StepID: view.StepID})
		if err := sess.Save(); err != nil {
			return err
		}
		fmt.Printf("Started session %s: %s\n", sess.ID, wf.Meta.Name)
	}
	defer sess.Close()

	return driver.New(sess).Run()
}

// --- sessions ---

var sessionsDir string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted sessions",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	store := session.NewStore(sessionsDir)
	rows, err := store.List()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	fmt.Printf("%-22s %-10s %-20s %s\n", "SESSION", "STATUS", "STEP", "SAVED")
	for _, r := range rows {
		step := r.StepID
		if step == "" {
			step = "-"
		}
		fmt.Printf("%-22s %-10s %-20s %s\n", r.ID, r.Status, step, r.SavedAt.Format(time.RFC3339))
	}
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lanes %s (build: %s)\n", version, commit)
	},
}

func init() {
	driveCmd.Flags().StringVar(&driveSummary, "summary", "", "Session summary recorded at start")
	driveCmd.Flags().StringVar(&driveResume, "resume", "", "Session ID to resume")
	driveCmd.Flags().StringVar(&driveSessionsDir, "sessions-dir", "", "Session storage directory (default "+session.DefaultRoot+")")

	sessionsCmd.Flags().StringVar(&sessionsDir, "sessions-dir", "", "Session storage directory (default "+session.DefaultRoot+")")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}
