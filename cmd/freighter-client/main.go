// freighter-client is a small operational client for a freighter registry:
//
//	FREIGHTER_CLIENT_AUTH_TOKEN=x freighter-client --registry http://localhost:3000/index publish test-1.0.0.crate
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freighter-registry/freighter/pkg/client"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "freighter-client",
	Short: "Client for a freighter registry",
}

func init() {
	rootCmd.PersistentFlags().String("registry", "", "Registry index URL (http://rs.example.com/index)")
	_ = rootCmd.MarkPersistentFlagRequired("registry")

	rootCmd.AddCommand(registerClientCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(yankCmd)
	rootCmd.AddCommand(unyankCmd)
	rootCmd.AddCommand(searchCmd)
}

// newClient builds a client for the configured registry, picking the token
// up from the environment.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	registry, _ := cmd.Flags().GetString("registry")
	return client.New(cmd.Context(), registry, os.Getenv("FREIGHTER_CLIENT_AUTH_TOKEN"))
}

var registerClientCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and print its token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		token, err := c.Register(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <name@version>...",
	Short: "Download crate tarballs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		for _, spec := range args {
			name, version, ok := strings.Cut(spec, "@")
			if !ok {
				return fmt.Errorf("spec must be name@version: %q", spec)
			}
			path := fmt.Sprintf("%s-%s.crate", name, version)
			if _, err := os.Stat(path); err == nil {
				continue
			}
			tarball, err := c.DownloadCrate(cmd.Context(), name, version)
			if err != nil {
				return fmt.Errorf("failed to download %s: %w", spec, err)
			}
			if err := os.WriteFile(path, tarball, 0o644); err != nil {
				return err
			}
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <tarball>...",
	Short: "Publish crate tarballs, reading metadata from their manifests",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		failures := 0
		for _, path := range args {
			spec, err := publishFromTarball(cmd.Context(), c, path)
			if err != nil {
				failures++
				fmt.Fprintf(os.Stderr, "%s: failed: %v\n", spec, err)
				continue
			}
			fmt.Printf("%s: published\n", spec)
		}
		if failures != 0 {
			return fmt.Errorf("publish failed (%d)", failures)
		}
		return nil
	},
}

func publishFromTarball(ctx context.Context, c *client.Client, path string) (string, error) {
	tarball, err := os.ReadFile(path)
	if err != nil {
		return path, err
	}
	p, err := publishFromManifest(tarball)
	if err != nil {
		return path, err
	}
	spec := fmt.Sprintf("%s@%s", p.Name, p.Vers)
	if _, err := c.Publish(ctx, p, tarball); err != nil {
		return spec, err
	}
	return spec, nil
}

var yankCmd = &cobra.Command{
	Use:   "yank <name@version>",
	Short: "Yank a published version",
	Args:  cobra.ExactArgs(1),
	RunE:  yankRun(true),
}

var unyankCmd = &cobra.Command{
	Use:   "unyank <name@version>",
	Short: "Clear a version's yanked flag",
	Args:  cobra.ExactArgs(1),
	RunE:  yankRun(false),
}

func yankRun(yank bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		name, version, ok := strings.Cut(args[0], "@")
		if !ok {
			return fmt.Errorf("spec must be name@version: %q", args[0])
		}
		if yank {
			return c.Yank(cmd.Context(), name, version)
		}
		return c.Unyank(cmd.Context(), name, version)
	}
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		results, err := c.Search(cmd.Context(), args[0], 20)
		if err != nil {
			return err
		}
		for _, entry := range results.Crates {
			fmt.Printf("%s %s  %s\n", entry.Name, entry.MaxVersion, entry.Description)
		}
		fmt.Printf("(%d total)\n", results.Meta.Total)
		return nil
	},
}
