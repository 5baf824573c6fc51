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
	rootCmd.AddCommand(ejectCmd)
	ejectCmd.Flags().StringP("team-id", "t", "", "Signing team identifier for the CoreTrust bypass")
	ejectCmd.Flags().BoolP("prune", "p", false, "Also drop the ejected assets from the persisted store")
	viper.BindPFlag("eject.team-id", ejectCmd.Flags().Lookup("team-id"))
	viper.BindPFlag("eject.prune", ejectCmd.Flags().Lookup("prune"))
}

// ejectCmd represents the eject command
var ejectCmd = &cobra.Command{
	Use:   "eject <APP> [DYLIB|FRAMEWORK...]",
	Short: "Remove injected assets from an app bundle",
	Example: heredoc.Doc(`
		# Eject everything previously injected and restore the pristine binary
		❯ trollpatch eject /Applications/Foo.app
		# Eject one asset only
		❯ trollpatch eject /Applications/Foo.app tweak.dylib`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		appPath := filepath.Clean(args[0])

		conf := injector.Config{
			TeamID:  viper.GetString("eject.team-id"),
			Persist: viper.GetBool("eject.prune"),
		}

		var opts []injector.Option
		if conf.Persist {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			opts = append(opts, injector.WithStore(store))
		}

		inj, err := injector.New(appPath, conf, opts...)
		if err != nil {
			return err
		}

		log.WithField("app", inj.AppID()).Info("Ejecting")

		return inj.Eject(args[1:])
	},
}
