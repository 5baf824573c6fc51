/*
Copyright © 2024-2026 82flex

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/82flex/trollpatch/internal/injector"
)

func init() {
	rootCmd.AddCommand(reapplyCmd)
	reapplyCmd.Flags().StringP("team-id", "t", "", "Signing team identifier for the CoreTrust bypass")
	reapplyCmd.Flags().StringP("strategy", "s", "lexicographic", "Target selection strategy (lexicographic|fast|preorder|postorder)")
	viper.BindPFlag("reapply.team-id", reapplyCmd.Flags().Lookup("team-id"))
	viper.BindPFlag("reapply.strategy", reapplyCmd.Flags().Lookup("strategy"))
}

// reapplyCmd represents the reapply command
var reapplyCmd = &cobra.Command{
	Use:   "reapply <APP>",
	Short: "Re-inject the persisted assets after an app update wiped them",
	Example: heredoc.Doc(`
		# An app update replaced the bundle; put the recorded tweaks back
		❯ trollpatch reapply /Applications/Foo.app`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		strategy, err := injector.ParseStrategy(viper.GetString("reapply.strategy"))
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		inj, err := injector.New(filepath.Clean(args[0]), injector.Config{
			TeamID:   viper.GetString("reapply.team-id"),
			Strategy: strategy,
			Persist:  true,
		}, injector.WithStore(store))
		if err != nil {
			return err
		}

		log.WithField("app", inj.AppID()).Info("Re-applying persisted assets")

		return inj.Reapply()
	},
}
