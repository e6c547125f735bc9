// Command lorocli is a small driver over a loro.Document: create/import/
// export/inspect a document from the shell, exercising the same surface
// described in SPEC_FULL.md §0/§1.3.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	loro "github.com/loro-dev/loro-go"
	"github.com/loro-dev/loro-go/internal/id"
)

var peerFlag uint64

func main() {
	root := &cobra.Command{
		Use:   "lorocli",
		Short: "Inspect and drive a loro document from the command line",
	}
	root.PersistentFlags().Uint64Var(&peerFlag, "peer", 0, "peer id to use for newly created documents (0 = random)")

	root.AddCommand(newCmd(), importCmd(), exportCmd(), inspectCmd(), textCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDoc() *loro.Document {
	if peerFlag != 0 {
		return loro.NewWithPeer(id.PeerID(peerFlag))
	}
	return loro.New()
}

func newCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty document and write a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := openDoc()
			blob, err := doc.ExportSnapshot()
			if err != nil {
				return err
			}
			return writeOut(out, blob)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output path ('-' for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a blob into a fresh document and re-export a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readIn(in)
			if err != nil {
				return err
			}
			doc := openDoc()
			if err := doc.Import(data); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			blob, err := doc.ExportSnapshot()
			if err != nil {
				return err
			}
			return writeOut(out, blob)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input path ('-' for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output path ('-' for stdout)")
	return cmd
}

func exportCmd() *cobra.Command {
	var in, out string
	var json_ bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-export an imported document as a snapshot or JSON updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readIn(in)
			if err != nil {
				return err
			}
			doc := openDoc()
			if err := doc.Import(data); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			var blob []byte
			if json_ {
				blob, err = doc.ExportJSONUpdates(nil)
			} else {
				blob, err = doc.ExportSnapshot()
			}
			if err != nil {
				return err
			}
			return writeOut(out, blob)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input path ('-' for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output path ('-' for stdout)")
	cmd.Flags().BoolVar(&json_, "json", false, "export as JSON updates instead of a binary-shaped snapshot")
	return cmd
}

func inspectCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the version vector and frontiers of an imported document",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readIn(in)
			if err != nil {
				return err
			}
			doc := openDoc()
			if err := doc.Import(data); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			report := map[string]any{
				"oplogVV":   doc.OplogVV(),
				"frontiers": doc.StateFrontiers(),
				"detached":  doc.IsDetached(),
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input path ('-' for stdin)")
	return cmd
}

func textCmd() *cobra.Command {
	var in, name, out string
	cmd := &cobra.Command{
		Use:   "text",
		Short: "Print the live content of a Text container by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readIn(in)
			if err != nil {
				return err
			}
			doc := openDoc()
			if err := doc.Import(data); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			s := doc.GetText(name).String()
			return writeOut(out, []byte(s))
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input path ('-' for stdin)")
	cmd.Flags().StringVar(&name, "name", "text", "root Text container name")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output path ('-' for stdout)")
	return cmd
}

func readIn(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOut(path string, data []byte) error {
	if path == "-" || path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
