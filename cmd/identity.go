package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/report"
)

var errNoFace = errors.New("no face detected")

var identityCmd = &cobra.Command{
	Use:     "identity",
	Aliases: []string{"identities", "id"},
	Short:   "Manage enrolled people",
	Long:    `Create, inspect and update the identities the kiosk can recognize.`,
}

var identityCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Enroll a new person",
	Long: `Enroll a new person with an optional face image, PIN and ID number.

Examples:
  kiosk identity create "Ana Gómez" --id-number 10001 --image ana.jpg
  kiosk identity create "Carmen Ruiz" --generate-pin --admin`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityCreate,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled people",
	RunE:  runIdentityList,
}

var identityShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityShow,
}

var identityEnrollCmd = &cobra.Command{
	Use:   "enroll <id> <image>...",
	Short: "Add face samples to an identity",
	Long: `Extract a face embedding from each image and append it to the identity.
Images without a detectable face are reported and skipped.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIdentityEnroll,
}

var identityAdminCmd = &cobra.Command{
	Use:   "admin <id>",
	Short: "Grant or revoke the admin flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityAdmin,
}

var identityCredentialsCmd = &cobra.Command{
	Use:   "credentials <id>",
	Short: "Set the PIN or ID number of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityCredentials,
}

var identityGenIDCmd = &cobra.Command{
	Use:   "gen-id",
	Short: "Print an unused PIN or ID number",
	RunE:  runIdentityGenID,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityCreateCmd, identityListCmd, identityShowCmd, identityEnrollCmd,
		identityAdminCmd, identityCredentialsCmd, identityGenIDCmd)

	identityCreateCmd.Flags().String("id-number", "", "ID number (cedula)")
	identityCreateCmd.Flags().String("pin", "", "PIN")
	identityCreateCmd.Flags().Bool("generate-pin", false, "Generate an unused PIN")
	identityCreateCmd.Flags().Bool("generate-id-number", false, "Generate an unused ID number")
	identityCreateCmd.Flags().String("image", "", "Face image to enroll")
	identityCreateCmd.Flags().Bool("admin", false, "Grant the admin flag")

	identityListCmd.Flags().String("query", "", "Only list names containing this text (accents ignored)")
	identityListCmd.Flags().Bool("vectors", false, "Include raw embeddings")

	identityAdminCmd.Flags().Bool("revoke", false, "Revoke instead of grant")

	identityCredentialsCmd.Flags().String("id-number", "", "New ID number")
	identityCredentialsCmd.Flags().String("pin", "", "New PIN")

	identityGenIDCmd.Flags().String("kind", "pin", "Identifier kind: pin or id")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid identity id %q", s)
	}
	return id, nil
}

// extractFromFile reads an image and returns its face embedding.
func extractFromFile(ctx context.Context, extractor embedding.Extractor, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	vector, err := extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extracting embedding from %s: %w", path, err)
	}
	if vector == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoFace)
	}
	return vector, nil
}

func runIdentityCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	e := identity.Enrollment{
		DisplayName: args[0],
		IDNumber:    mustGetString(cmd, "id-number"),
		PIN:         mustGetString(cmd, "pin"),
		IsAdmin:     mustGetBool(cmd, "admin"),
	}
	if mustGetBool(cmd, "generate-pin") && e.PIN == "" {
		if e.PIN, err = a.identities.GenerateUniqueIdentifier(ctx, database.CredentialPIN); err != nil {
			return err
		}
	}
	if mustGetBool(cmd, "generate-id-number") && e.IDNumber == "" {
		if e.IDNumber, err = a.identities.GenerateUniqueIdentifier(ctx, database.CredentialIDNumber); err != nil {
			return err
		}
	}
	if path := mustGetString(cmd, "image"); path != "" {
		if e.Embedding, err = extractFromFile(ctx, embedding.NewClientFromConfig(&a.cfg.Embedding), path); err != nil {
			return err
		}
	}

	id, err := a.identities.CreateIdentity(ctx, e)
	if err != nil {
		return err
	}
	return printIdentity(ctx, a, id)
}

func printIdentity(ctx context.Context, a *app, id int64) error {
	i, err := a.identities.Get(ctx, id)
	if err != nil {
		return err
	}
	if i == nil {
		return fmt.Errorf("identity %d: %w", id, database.ErrNotFound)
	}
	table := report.NewTable(report.IdentityRows([]database.Identity{*i}, false), report.IdentityColumns...)
	return writeTable(table)
}

func writeTable(table *report.Table) error {
	format := "text"
	if jsonOutput {
		format = "json"
	}
	return table.Write(os.Stdout, format)
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var identities []database.Identity
	if q := mustGetString(cmd, "query"); q != "" {
		identities, err = a.identities.FindByName(ctx, q)
	} else {
		identities, err = a.identities.AllIdentities(ctx)
	}
	if err != nil {
		return err
	}
	rows := report.IdentityRows(identities, mustGetBool(cmd, "vectors"))
	return writeTable(report.NewTable(rows, report.IdentityColumns...))
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return printIdentity(ctx, a, id)
}

func runIdentityEnroll(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	extractor := embedding.NewClientFromConfig(&a.cfg.Embedding)
	added := 0
	for _, path := range args[1:] {
		vector, err := extractFromFile(ctx, extractor, path)
		if errors.Is(err, errNoFace) {
			fmt.Fprintf(os.Stderr, "Skipping %s: no face detected\n", path)
			continue
		}
		if err != nil {
			return err
		}
		if _, err := a.identities.AppendEmbedding(ctx, id, vector); err != nil {
			return err
		}
		added++
	}
	if !jsonOutput {
		fmt.Printf("Added %d of %d face samples\n", added, len(args)-1)
	}
	return printIdentity(ctx, a, id)
}

func runIdentityAdmin(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.identities.SetAdmin(ctx, id, !mustGetBool(cmd, "revoke")); err != nil {
		return err
	}
	return printIdentity(ctx, a, id)
}

func runIdentityCredentials(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	idNumber, pin := mustGetString(cmd, "id-number"), mustGetString(cmd, "pin")
	if idNumber == "" && pin == "" {
		return errors.New("set --id-number, --pin or both")
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.identities.AddCredentials(ctx, id, idNumber, pin); err != nil {
		return err
	}
	return printIdentity(ctx, a, id)
}

func runIdentityGenID(cmd *cobra.Command, args []string) error {
	kind, ok := database.ParseCredentialKind(mustGetString(cmd, "kind"))
	if !ok {
		return fmt.Errorf("unknown identifier kind %q (use pin or id)", mustGetString(cmd, "kind"))
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	value, err := a.identities.GenerateUniqueIdentifier(ctx, kind)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(map[string]string{"kind": string(kind), "value": value})
	}
	fmt.Println(value)
	return nil
}
