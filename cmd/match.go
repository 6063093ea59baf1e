package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Identify a face image, PIN or ID number without recording attendance",
	Long: `Run the identity matcher against the enrolled people.
Exactly one of --image, --pin or --id-number is required.

Examples:
  kiosk match --image visitor.jpg
  kiosk match --image visitor.jpg --threshold 0.5
  kiosk match --pin 1234`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("image", "", "Face image")
	matchCmd.Flags().String("pin", "", "PIN")
	matchCmd.Flags().String("id-number", "", "ID number (cedula)")
	matchCmd.Flags().Float64("threshold", 0, "Maximum face distance (default from MATCH_THRESHOLD)")
	matchCmd.MarkFlagsMutuallyExclusive("image", "pin", "id-number")
}

// MatchOutput is the result of the match command.
type MatchOutput struct {
	Matched     bool    `json:"matched"`
	IdentityID  int64   `json:"identity_id,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Method      string  `json:"method,omitempty"`
	Distance    float64 `json:"distance,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	image, pin, idNumber := mustGetString(cmd, "image"), mustGetString(cmd, "pin"), mustGetString(cmd, "id-number")
	if image == "" && pin == "" && idNumber == "" {
		return errors.New("one of --image, --pin or --id-number is required")
	}

	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var out MatchOutput
	switch {
	case image != "":
		vector, err := extractFromFile(ctx, embedding.NewClientFromConfig(&a.cfg.Embedding), image)
		if err != nil {
			return err
		}
		m, err := a.matcher.MatchFace(ctx, vector, mustGetFloat64(cmd, "threshold"))
		if err != nil {
			return err
		}
		if m != nil {
			out = MatchOutput{Matched: true, IdentityID: m.Identity.ID, DisplayName: m.Identity.DisplayName, Method: string(m.Method), Distance: m.Distance}
		}
	default:
		kind, value := database.CredentialPIN, pin
		if idNumber != "" {
			kind, value = database.CredentialIDNumber, idNumber
		}
		m, err := a.matcher.MatchCredential(ctx, value, kind)
		if err != nil {
			return err
		}
		if m != nil {
			out = MatchOutput{Matched: true, IdentityID: m.Identity.ID, DisplayName: m.Identity.DisplayName, Method: string(m.Method)}
		}
	}

	if jsonOutput {
		return outputJSON(out)
	}
	if !out.Matched {
		fmt.Println("No match")
		return nil
	}
	fmt.Printf("Matched: %s (id %d) by %s", out.DisplayName, out.IdentityID, out.Method)
	if out.Method == string(database.MethodFace) {
		fmt.Printf(", distance %.4f", out.Distance)
	}
	fmt.Println()
	return nil
}
