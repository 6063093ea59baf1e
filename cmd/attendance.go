package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/report"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect the attendance ledger",
	Long:  `List attendance records, add a manual record, or purge old records.`,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records in creation order",
	Long: `List attendance records in creation order.

Examples:
  kiosk attendance list --since 2026-03-01
  kiosk attendance list --identity 12 --json`,
	RunE: runAttendanceList,
}

var attendanceRecordCmd = &cobra.Command{
	Use:   "record <identity-id>",
	Short: "Record attendance for an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceRecord,
}

var attendancePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete records older than a date",
	Long: `Delete every attendance record with a timestamp before --before.
This cannot be undone.`,
	RunE: runAttendancePurge,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd, attendanceRecordCmd, attendancePurgeCmd)

	attendanceListCmd.Flags().Int64("identity", 0, "Only records of this identity")
	attendanceListCmd.Flags().String("since", "", "Only records at or after this date or RFC3339 time")
	attendanceListCmd.Flags().String("until", "", "Only records before this date or RFC3339 time")

	attendanceRecordCmd.Flags().String("method", string(database.MethodPIN), "Method: face, pin, cedula or register")

	attendancePurgeCmd.Flags().String("before", "", "Delete records before this date or RFC3339 time (required)")
	attendancePurgeCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
	_ = attendancePurgeCmd.MarkFlagRequired("before")
}

// parseWhen accepts an RFC3339 time or a YYYY-MM-DD date in local time. Empty is the zero time.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	since, err := parseWhen(mustGetString(cmd, "since"))
	if err != nil {
		return err
	}
	until, err := parseWhen(mustGetString(cmd, "until"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var records []database.AttendanceRecord
	if id := mustGetInt64(cmd, "identity"); id > 0 {
		records, err = a.ledger.ListForIdentity(ctx, id)
	} else {
		records, err = a.ledger.ListAll(ctx)
	}
	if err != nil {
		return err
	}
	identities, err := a.identities.AllIdentities(ctx)
	if err != nil {
		return err
	}

	rows := report.AttendanceRows(report.InWindow(records, since, until), identities)
	return writeTable(report.NewTable(rows, report.AttendanceColumns...))
}

func runAttendanceRecord(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	method := database.Method(mustGetString(cmd, "method"))
	if !method.Valid() {
		return fmt.Errorf("unknown method %q", method)
	}

	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	i, err := a.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if i == nil {
		return fmt.Errorf("identity %d: %w", id, database.ErrNotFound)
	}

	rec := a.ledger.Record(ctx, id, method)
	if err := a.ledger.Flush(ctx); err != nil {
		return fmt.Errorf("saving attendance record: %w", err)
	}
	return writeTable(report.NewTable(report.AttendanceRows([]database.AttendanceRecord{rec}, []database.Identity{*i}), report.AttendanceColumns...))
}

func runAttendancePurge(cmd *cobra.Command, args []string) error {
	before, err := parseWhen(mustGetString(cmd, "before"))
	if err != nil {
		return err
	}
	if before.IsZero() {
		return errors.New("--before is required")
	}

	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete all attendance records before %s? [y/N]: ", before.Format(time.RFC3339))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		if r := strings.ToLower(strings.TrimSpace(response)); r != "y" && r != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	n, err := a.ledger.Purge(ctx, before)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(map[string]int64{"deleted": n})
	}
	fmt.Printf("Deleted %d attendance records\n", n)
	return nil
}
