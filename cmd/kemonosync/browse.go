package main

import (
	"github.com/spf13/cobra"
)

var (
	recentQuery  string
	recentOffset int
)

var creatorsCmd = &cobra.Command{
	Use:   "creators",
	Short: "Print the upstream creator listing as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer a.finish()

		creators, err := a.client.Creators(ctx)
		if err != nil {
			return err
		}
		return a.out.JSON(creators)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print one page of the site-wide recent posts as JSON",
	Example: `  kemonosync -H kemono.su recent
  kemonosync -H kemono.su recent --query "sketch" --offset 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cmd, true)
		if err != nil {
			return err
		}
		defer a.finish()

		posts, err := a.client.RecentPosts(ctx, recentQuery, recentOffset)
		if err != nil {
			return err
		}
		return a.out.JSON(posts)
	},
}

var appVersionCmd = &cobra.Command{
	Use:   "app-version",
	Short: "Print the upstream build identifier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cmd, false)
		if err != nil {
			return err
		}

		v, err := a.client.AppVersion(ctx)
		if err != nil {
			return err
		}
		a.out.Line(v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(creatorsCmd, recentCmd, appVersionCmd)

	recentCmd.Flags().StringVar(&recentQuery, "query", "", "search term")
	recentCmd.Flags().IntVar(&recentOffset, "offset", 0, "listing offset (multiples of 50)")
}
