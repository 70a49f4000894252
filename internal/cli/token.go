package cli

import (
	"fmt"

	"github.com/Sannainmf/GmshApp-Hexera/internal/auth"
	"github.com/Sannainmf/GmshApp-Hexera/internal/security"
	"github.com/spf13/cobra"
)

type generatedToken struct {
	Token  string `json:"token"`
	SHA256 string `json:"sha256"`
	Bcrypt string `json:"bcrypt,omitempty"`
}

func (a *app) tokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API keys",
	}

	var withBcrypt bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new API key and the hashes to put in the server's API_KEYS",
		Args:  cobra.NoArgs,
		Example: `  gmshgen token generate
  gmshgen token generate --bcrypt -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := security.GenerateToken(32)
			if err != nil {
				return err
			}
			out := generatedToken{Token: token, SHA256: "sha256:" + security.HashToken(token)}
			if withBcrypt {
				if out.Bcrypt, err = auth.HashKey(token); err != nil {
					return err
				}
			}
			if !a.tableOutput() {
				return a.formatter().Write(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Token:  %s\n", out.Token)
			fmt.Fprintf(w, "Server: %s\n", out.SHA256)
			if out.Bcrypt != "" {
				fmt.Fprintf(w, "Bcrypt: %s\n", out.Bcrypt)
			}
			return nil
		},
	}
	generateCmd.Flags().BoolVar(&withBcrypt, "bcrypt", false, "Also print a bcrypt hash")

	tokenCmd.AddCommand(generateCmd)
	return tokenCmd
}
