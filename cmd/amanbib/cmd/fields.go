package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// fieldInfo is one row of the fields listing.
type fieldInfo struct {
	Name      string `json:"name"`
	Treatment string `json:"treatment"`
}

func newFieldsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List searchable fields",
		Long: `List every bibliographic field seen in the library and how it is
indexed: text fields are tokenized, keyword lists match whole keywords,
and the file field holds linked files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, cfg, err := loadLibrary()
			if err != nil {
				return err
			}
			m, err := openIndex(cmd.Context(), lib, cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			reg := m.Registry()
			names := reg.Fields()
			fields := make([]fieldInfo, 0, len(names))
			for _, name := range names {
				fields = append(fields, fieldInfo{Name: name, Treatment: reg.Describe(name)})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(fields)
			}

			out := newOutput(cmd)
			out.Statusf("📚", "%d fields in %s", len(fields), lib.Name())
			rows := make([][2]string, 0, len(fields))
			for _, f := range fields {
				rows = append(rows, [2]string{f.Name, f.Treatment})
			}
			out.Table(rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
