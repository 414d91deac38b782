package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/replypilot/enrich-cli/internal/leads"
	"github.com/replypilot/enrich-cli/internal/model"
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Manage leads",
}

var leadAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a lead",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := cmd.Flags()
		name, _ := f.GetString("name")
		location, _ := f.GetString("location")
		website, _ := f.GetString("website")
		phone, _ := f.GetString("phone")
		keywords, _ := f.GetString("keywords")

		l, err := leads.NewService(st).Create(ctx, userID, leads.NewLead{
			Name:     name,
			Location: location,
			Website:  website,
			Phone:    phone,
			Keywords: leads.Keywords(model.SplitKeywords(keywords)),
		})
		if err != nil {
			return eris.Wrap(err, "lead add")
		}
		return printJSON(os.Stdout, l)
	},
}

var leadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ls, err := leads.NewService(st).List(ctx, userID)
		if err != nil {
			return eris.Wrap(err, "lead list")
		}
		if len(ls) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, ls)
		}
		formatLeads(os.Stdout, ls)
		return nil
	},
}

// editableFlags are the lead edit flags, one per patchable field.
var editableFlags = []string{
	"name", "location", "type", "description", "keywords",
	"website", "email", "phone", "facebook", "instagram", "tiktok",
}

var leadEditCmd = &cobra.Command{
	Use:   "edit <lead-id>",
	Short: "Edit a lead's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		l, err := leads.NewService(st).Update(ctx, userID, args[0], p)
		if err != nil {
			return eris.Wrap(err, "lead edit")
		}
		return printJSON(os.Stdout, l)
	},
}

var leadRmCmd = &cobra.Command{
	Use:   "rm <lead-id>",
	Short: "Delete a lead with its sources and log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := leads.NewService(st).Delete(ctx, userID, args[0]); err != nil {
			return eris.Wrap(err, "lead rm")
		}
		fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
		return nil
	},
}

// patchFromFlags builds a Patch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) (leads.Patch, error) {
	var p leads.Patch
	changed := 0
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		changed++
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	p.Name = str("name")
	p.Location = str("location")
	p.Type = str("type")
	p.Description = str("description")
	p.Website = str("website")
	p.Email = str("email")
	p.Phone = str("phone")
	p.Facebook = str("facebook")
	p.Instagram = str("instagram")
	p.Tiktok = str("tiktok")
	if kw := str("keywords"); kw != nil {
		k := leads.Keywords(model.SplitKeywords(*kw))
		p.Keywords = &k
	}
	if changed == 0 {
		return p, eris.New("lead edit: no fields to change")
	}
	return p, nil
}

func formatLeads(w io.Writer, ls []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tWEBSITE\tIDENTITY\tCONTACT\tSOURCES")
	for _, l := range ls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			shortID(l.ID), l.Name, l.Location, dash(l.Website),
			check(l.IdentityComplete), check(l.ContactComplete), len(l.Sources),
		)
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func check(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	leadAddCmd.Flags().String("name", "", "business name (required)")
	leadAddCmd.Flags().String("location", "", "city or address (required)")
	leadAddCmd.Flags().String("website", "", "business website")
	leadAddCmd.Flags().String("phone", "", "phone number")
	leadAddCmd.Flags().String("keywords", "", "comma separated keywords")
	_ = leadAddCmd.MarkFlagRequired("name")
	_ = leadAddCmd.MarkFlagRequired("location")

	leadListCmd.Flags().Bool("json", false, "print JSON instead of a table")

	for _, name := range editableFlags {
		leadEditCmd.Flags().String(name, "", "new "+name)
	}

	leadCmd.AddCommand(leadAddCmd, leadListCmd, leadEditCmd, leadRmCmd)
	rootCmd.AddCommand(leadCmd)
}
