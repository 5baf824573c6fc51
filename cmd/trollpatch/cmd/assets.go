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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/82flex/trollpatch/internal/injector"
	"github.com/82flex/trollpatch/internal/model"
)

func init() {
	rootCmd.AddCommand(assetsCmd)
}

// assetsCmd represents the assets command
var assetsCmd = &cobra.Command{
	Use:   "assets <APP|BUNDLE-ID>",
	Short: "List the persisted assets recorded for an app",
	Example: heredoc.Doc(`
		❯ trollpatch assets /Applications/Foo.app
		❯ trollpatch assets com.example.foo`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		identifier := args[0]
		if injector.IsBundle(identifier) {
			id, err := injector.Identifier(filepath.Clean(identifier))
			if err != nil {
				return err
			}
			identifier = id
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		paths, err := store.Assets(identifier)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				log.WithField("app", identifier).Info("No persisted assets")
				return nil
			}
			return err
		}

		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				fmt.Printf("%s (missing)\n", path)
				continue
			}
			fmt.Println(path)
		}

		return nil
	},
}
