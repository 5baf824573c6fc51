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
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/82flex/trollpatch/internal/injector"
	"github.com/82flex/trollpatch/pkg/plist"
)

var (
	symGreen = color.New(color.Bold, color.FgHiGreen).SprintFunc()
	symRed   = color.New(color.Bold, color.FgRed).SprintFunc()
	symBold  = color.New(color.Bold).SprintFunc()
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <APP>",
	Short: "Show injection and swap state of an app bundle",
	Example: heredoc.Doc(`
		❯ trollpatch status /Applications/Foo.app`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		appPath := filepath.Clean(args[0])

		info, err := plist.AppInfoFromBundle(appPath)
		if err != nil {
			return err
		}

		fmt.Println(symBold(info.String()))

		if injector.IsInjectedBundle(appPath) {
			fmt.Printf("Injected:   %s\n", symGreen("yes"))
		} else {
			fmt.Printf("Injected:   %s\n", symRed("no"))
		}

		for _, asset := range injector.InjectedAssets(appPath) {
			fmt.Printf("  %s\n", filepath.Base(asset))
		}

		for _, game := range injector.Games() {
			if injector.IsSwapped(game, appPath) {
				fmt.Printf("Swapped:    %s (%s)\n", symGreen("yes"), game)
			}
		}

		if machO, err := injector.LocateExecutable(appPath); err == nil {
			if injector.IsProtected(machO) {
				fmt.Printf("Executable: %s (%s)\n", filepath.Base(machO), symRed("protected"))
			} else {
				fmt.Printf("Executable: %s\n", filepath.Base(machO))
			}
			if viper.GetBool("verbose") {
				if rpaths, err := injector.ListRpaths(machO); err == nil {
					for _, rp := range rpaths {
						fmt.Printf("  rpath %s\n", rp)
					}
				}
			}
		}

		return nil
	},
}
