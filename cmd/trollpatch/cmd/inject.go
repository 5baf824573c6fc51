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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/82flex/trollpatch/internal/injector"
)

func init() {
	rootCmd.AddCommand(injectCmd)
	injectCmd.Flags().BoolP("weak", "w", false, "Use LC_LOAD_WEAK_DYLIB instead of LC_LOAD_DYLIB")
	injectCmd.Flags().BoolP("main", "m", false, "Prefer the app's main executable as injection target")
	injectCmd.Flags().StringP("strategy", "s", "lexicographic", "Target selection strategy (lexicographic|fast|preorder|postorder)")
	injectCmd.Flags().StringP("team-id", "t", "", "Signing team identifier for the CoreTrust bypass")
	injectCmd.Flags().BoolP("persist", "p", false, "Record injected assets for later re-apply")
	injectCmd.Flags().BoolP("force", "f", false, "Skip the .deb extraction confirmation")
	viper.BindPFlag("inject.weak", injectCmd.Flags().Lookup("weak"))
	viper.BindPFlag("inject.main", injectCmd.Flags().Lookup("main"))
	viper.BindPFlag("inject.strategy", injectCmd.Flags().Lookup("strategy"))
	viper.BindPFlag("inject.team-id", injectCmd.Flags().Lookup("team-id"))
	viper.BindPFlag("inject.persist", injectCmd.Flags().Lookup("persist"))
	viper.BindPFlag("inject.force", injectCmd.Flags().Lookup("force"))
}

// injectCmd represents the inject command
var injectCmd = &cobra.Command{
	Use:   "inject <APP> <DYLIB|FRAMEWORK|DEB|BUNDLE...>",
	Short: "Inject dylibs, frameworks or debs into an app bundle",
	Example: heredoc.Doc(`
		# Inject a loose dylib, persisting it for re-apply after app updates
		❯ trollpatch inject --persist /Applications/Foo.app tweak.dylib
		# Extract a tweak .deb and inject its payload into the main executable
		❯ trollpatch inject --main /Applications/Foo.app tweak.deb`),
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		strategy, err := injector.ParseStrategy(viper.GetString("inject.strategy"))
		if err != nil {
			return err
		}

		appPath := filepath.Clean(args[0])
		assets, err := expandDebs(args[1:], viper.GetBool("inject.force"))
		if err != nil {
			return err
		}

		conf := injector.Config{
			TeamID:               viper.GetString("inject.team-id"),
			UseWeakReference:     viper.GetBool("inject.weak"),
			PreferMainExecutable: viper.GetBool("inject.main"),
			Strategy:             strategy,
			Persist:              viper.GetBool("inject.persist"),
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

		log.WithFields(log.Fields{
			"app":    inj.AppID(),
			"assets": len(assets),
		}).Info("Injecting")

		return inj.Inject(assets)
	},
}

// expandDebs replaces every .deb in paths with its extracted payloads,
// asking for confirmation first since deb extraction drops maintainer
// scripts on the floor.
func expandDebs(paths []string, force bool) ([]string, error) {
	var out []string
	for _, path := range paths {
		if strings.ToLower(filepath.Ext(path)) != ".deb" {
			out = append(out, path)
			continue
		}
		if !force {
			yes := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Extract %s and inject its payload? (maintainer scripts will NOT run)", filepath.Base(path)),
			}
			survey.AskOne(prompt, &yes)
			if !yes {
				return nil, fmt.Errorf("aborted extraction of %s", filepath.Base(path))
			}
		}
		dest, err := os.MkdirTemp("", "trollpatch-deb")
		if err != nil {
			return nil, err
		}
		payloads, err := injector.ExpandDeb(path, dest)
		if err != nil {
			return nil, err
		}
		if len(payloads) == 0 {
			return nil, fmt.Errorf("%s contains no injectable payloads", filepath.Base(path))
		}
		out = append(out, payloads...)
	}
	return out, nil
}
