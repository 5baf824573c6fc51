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
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/82flex/trollpatch/internal/download"
	"github.com/82flex/trollpatch/internal/injector"
	"github.com/82flex/trollpatch/internal/utils"
)

func init() {
	rootCmd.AddCommand(swapCmd)
	swapCmd.AddCommand(swapRestoreCmd)
	swapCmd.PersistentFlags().StringP("team-id", "t", "", "Signing team identifier for the CoreTrust bypass")
	swapCmd.Flags().String("proxy", "", "HTTP/HTTPS proxy for URL replacements")
	swapCmd.Flags().Bool("insecure", false, "Do not verify TLS certs when downloading")
	viper.BindPFlag("swap.team-id", swapCmd.PersistentFlags().Lookup("team-id"))
	viper.BindPFlag("swap.proxy", swapCmd.Flags().Lookup("proxy"))
	viper.BindPFlag("swap.insecure", swapCmd.Flags().Lookup("insecure"))
}

func gameNames() string {
	var names []string
	for _, game := range injector.Games() {
		names = append(names, string(game))
	}
	return strings.Join(names, "|")
}

// swapCmd represents the swap command
var swapCmd = &cobra.Command{
	Use:   "swap <GAME> <APP> <BINARY|URL>",
	Short: "Swap a game's known framework binary with a replacement",
	Example: heredoc.Doc(`
		# Swap from a local file
		❯ trollpatch swap pubg /Applications/PUBG.app ./libwebp.patched
		# Swap from a download URL
		❯ trollpatch swap crossfire /Applications/CrossFire.app https://example.com/PixVideo.patched`),
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		game, err := injector.ParseGame(args[0])
		if err != nil {
			return fmt.Errorf("%v; must be one of: %s", err, gameNames())
		}

		newFile := args[2]
		if strings.HasPrefix(newFile, "http://") || strings.HasPrefix(newFile, "https://") {
			tmp, err := os.MkdirTemp("", "trollpatch-swap")
			if err != nil {
				return err
			}
			dl := download.NewDownload(viper.GetString("swap.proxy"), viper.GetBool("swap.insecure"), viper.GetBool("verbose"))
			dl.URL = newFile
			dl.DestName = filepath.Join(tmp, filepath.Base(newFile))
			if err := dl.Do(); err != nil {
				return err
			}
			newFile = dl.DestName
		}
		if strings.EqualFold(filepath.Ext(newFile), ".zip") {
			tmp, err := os.MkdirTemp("", "trollpatch-swap")
			if err != nil {
				return err
			}
			names, err := utils.Unzip(newFile, tmp, func(f *zip.File) bool {
				return !f.FileInfo().IsDir()
			})
			if err != nil {
				return fmt.Errorf("failed to extract %s: %v", filepath.Base(newFile), err)
			}
			if len(names) != 1 {
				return fmt.Errorf("expected a single binary in %s, found %d files", filepath.Base(newFile), len(names))
			}
			newFile = filepath.Join(tmp, names[0])
		}

		inj, err := injector.New(filepath.Clean(args[1]), injector.Config{
			TeamID: viper.GetString("swap.team-id"),
		})
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"app":  inj.AppID(),
			"game": game,
		}).Info("Swapping binary")

		return inj.Replace(game, newFile)
	},
}

// swapRestoreCmd represents the swap restore command
var swapRestoreCmd = &cobra.Command{
	Use:   "restore <GAME> <APP>",
	Short: "Restore a game's original framework binary",
	Example: heredoc.Doc(`
		❯ trollpatch swap restore pubg /Applications/PUBG.app`),
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		game, err := injector.ParseGame(args[0])
		if err != nil {
			return fmt.Errorf("%v; must be one of: %s", err, gameNames())
		}

		inj, err := injector.New(filepath.Clean(args[1]), injector.Config{
			TeamID: viper.GetString("swap.team-id"),
		})
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"app":  inj.AppID(),
			"game": game,
		}).Info("Restoring original binary")

		return inj.Restore(game)
	},
}
